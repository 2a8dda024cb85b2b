package util

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/tactimerge/internal/model"
)

// ClassifyOpenAIError tags go-openai HTTP failures (429, 5xx) with the
// transient sentinels so retries can recognise them. Other errors pass through.
func ClassifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return classified(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return classified(reqErr.HTTPStatusCode, http.StatusText(reqErr.HTTPStatusCode), err)
	}
	return err
}

func classified(status int, detail string, cause error) error {
	if !isTransientStatus(status) {
		return cause
	}
	return errors.Join(model.StatusError(status, detail), cause)
}

func isTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500
}

// ResponseError reads a failed JSON backend response into a classified error.
// extract pulls a message out of the body when the backend has an error schema.
func ResponseError(resp *http.Response, extract func([]byte) string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	detail := strings.TrimSpace(string(body))
	if extract != nil {
		if msg := extract(body); msg != "" {
			detail = msg
		}
	}
	return model.StatusError(resp.StatusCode, detail)
}
