package mailbox

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

var (
	horizontalSpace = regexp.MustCompile(`[^\S\n]+`)
	blankRuns       = regexp.MustCompile(`\n{3,}`)
)

// Body is the decoded text content of a message.
type Body struct {
	Plain string
	HTML  string
}

// ParseBody walks the MIME tree of a raw RFC 5322 message and keeps the first
// text/plain and text/html inline parts. An HTML-only message gets a plain
// text rendition derived from its markup.
func ParseBody(raw []byte) (Body, error) {
	var body Body
	if len(raw) == 0 {
		return body, nil
	}

	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return body, err
	}
	defer reader.Close()

	for {
		part, partErr := reader.NextPart()
		if errors.Is(partErr, io.EOF) {
			break
		}
		if partErr != nil && !message.IsUnknownCharset(partErr) {
			return body, partErr
		}
		if part == nil {
			break
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, _ := header.ContentType()
		if mediaType == "" {
			mediaType = "text/plain"
		}
		switch mediaType {
		case "text/plain":
			if body.Plain != "" {
				continue
			}
			content, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				return body, readErr
			}
			body.Plain = string(content)
		case "text/html":
			if body.HTML != "" {
				continue
			}
			content, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				return body, readErr
			}
			body.HTML = string(content)
		}
	}

	if body.Plain == "" && body.HTML != "" {
		plain, convertErr := HTMLToText(body.HTML)
		if convertErr != nil {
			return body, convertErr
		}
		body.Plain = plain
	}
	return body, nil
}

// HTMLToText strips markup and keeps block boundaries as line breaks.
func HTMLToText(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	document, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	document.Find("script, style, head").Remove()
	document.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, selection *goquery.Selection) {
		selection.PrependHtml("\n")
	})

	text := horizontalSpace.ReplaceAllString(document.Text(), " ")
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")), nil
}
