// Package extract reduces raw match documents to normalised narrative text
// and pulls structured numbers out of it.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Format of a raw document body.
type Format string

const (
	FormatText     Format = "text"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// Normalize returns the visible text of body collapsed to single spaces.
func Normalize(body string, format Format) (string, error) {
	switch format {
	case FormatHTML:
		text, err := VisibleText(body)
		if err != nil {
			return "", err
		}
		return CollapseWhitespace(text), nil
	case FormatMarkdown:
		return CollapseWhitespace(StripMarkdown(body)), nil
	}
	return CollapseWhitespace(body), nil
}

// DetectFormat guesses the format of an untagged body.
func DetectFormat(body string) Format {
	head := strings.ToLower(strings.TrimSpace(body))
	if len(head) > 512 {
		head = head[:512]
	}
	if strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html") ||
		strings.Contains(head, "<p>") || strings.Contains(head, "<div") {
		return FormatHTML
	}
	return FormatText
}

// VisibleText extracts text nodes from HTML, skipping scripts/styles
func VisibleText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "nav", "footer", "aside":
				return
			}
		}

		// Text is kept verbatim so inline markup does not split words from punctuation.
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			buf.WriteString("\n")
		}
	}

	walk(doc)
	return buf.String(), nil
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"td": true, "th": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"section": true, "article": true, "title": true,
}

var (
	mdLink     = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	mdHeading  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	mdEmphasis = regexp.MustCompile("[*_`]{1,3}")
	mdQuote    = regexp.MustCompile(`(?m)^\s*>\s?`)
	mdBullet   = regexp.MustCompile(`(?m)^\s*(?:[-+]|\d+\.)\s+`)
)

// StripMarkdown removes markdown markup and keeps link text.
func StripMarkdown(s string) string {
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdQuote.ReplaceAllString(s, "")
	s = mdBullet.ReplaceAllString(s, "")
	return mdEmphasis.ReplaceAllString(s, "")
}

// CollapseWhitespace trims s and joins its fields with single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Sentences splits text into sentences (simple heuristic)
func Sentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// Look ahead to avoid splitting on decimals and abbreviations
			if i+1 == len(text) || text[i+1] == ' ' {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
