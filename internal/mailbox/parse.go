package mailbox

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

var blockPattern = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)

// bodyText parses a raw RFC 5322 message and returns its text/plain body,
// or the tag-stripped text/html body when there is no plain part.
// Attachments are ignored.
func bodyText(raw []byte) (string, bool) {
	text, html := parseMIMEBody(raw)
	if text = strings.TrimSpace(text); text != "" {
		return text, true
	}
	if stripped := stripHTML(html); stripped != "" {
		return stripped, true
	}
	return "", false
}

// parseMIMEBody extracts the first text/plain and text/html inline parts.
func parseMIMEBody(raw []byte) (textBody string, htmlBody string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", ""
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			// io.EOF or a malformed part; keep what was decoded so far.
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && textBody == "":
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		}
	}

	return textBody, htmlBody
}

// stripHTML reduces an HTML body to readable text.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := blockPattern.ReplaceAllString(html, "")
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>", "</tr>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
