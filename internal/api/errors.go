package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ppiankov/tactimerge/internal/model"
)

var statusByKind = map[model.Kind]int{
	model.KindInvalidTag:           http.StatusBadRequest,
	model.KindInvalidFixture:       http.StatusUnprocessableEntity,
	model.KindInsufficientEvidence: http.StatusNotFound,
	model.KindNotFound:             http.StatusNotFound,
	model.KindDuplicateID:          http.StatusConflict,
	model.KindDimensionMismatch:    http.StatusInternalServerError,
	model.KindIncompatibleCorpus:   http.StatusInternalServerError,
	model.KindTimeout:              http.StatusGatewayTimeout,
	model.KindRateLimited:          http.StatusTooManyRequests,
	model.KindUnavailable:          http.StatusServiceUnavailable,
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf maps a domain error to its HTTP status and code.
func statusOf(err error) (int, model.Kind) {
	kind := model.KindOf(err)
	if status, ok := statusByKind[kind]; ok {
		return status, kind
	}
	return http.StatusInternalServerError, model.KindInternal
}

// errorHandler renders both domain errors and echo's own HTTP errors.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   ErrorBody
	)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		body.Error.Code = httpCode(he.Code)
		body.Error.Message = http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok {
			body.Error.Message = msg
		}
	} else {
		var kind model.Kind
		status, kind = statusOf(err)
		body.Error.Code = string(kind)
		body.Error.Message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "status", status, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Warn("write error response", "error", err)
	}
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "ROUTE_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "BODY_TOO_LARGE"
	case http.StatusServiceUnavailable:
		return string(model.KindUnavailable)
	}
	return string(model.KindInternal)
}
