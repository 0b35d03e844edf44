package model

import (
	"bytes"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// MessageView is the projection of one mailbox message that is shown to
// the model. Subject and Message serialize as null when absent.
type MessageView struct {
	Subject *string `json:"Subject"`
	From    string  `json:"From"`
	Date    string  `json:"Date"`
	Message *string `json:"Message"`
}

// NewMessageView builds a view, truncating body to maxBody runes.
// Empty subject or body are kept as absent.
func NewMessageView(subject, from string, date time.Time, body string, maxBody int) MessageView {
	v := MessageView{From: from}
	if !date.IsZero() {
		v.Date = date.Format(time.RFC1123Z)
	}
	if subject != "" {
		v.Subject = &subject
	}
	if body != "" {
		body = Truncate(body, maxBody)
		v.Message = &body
	}
	return v
}

// JSON returns the compact serialization embedded in prompts.
// HTML characters are left as-is.
func (v MessageView) JSON() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Truncate shortens s to at most n runes. n <= 0 leaves s untouched.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Verdict is the structured result extracted from a completion.
type Verdict struct {
	// Rating is nil when no integer rating could be extracted.
	Rating *int

	// Category is empty when absent.
	Category string
}

// HasRating reports whether a rating was extracted.
func (v Verdict) HasRating() bool { return v.Rating != nil }

// Decision is one journaled routing outcome.
type Decision struct {
	ID        string    `db:"id" json:"id"`
	CycleID   string    `db:"cycle_id" json:"cycle_id"`
	UID       uint32    `db:"uid" json:"uid"`
	Subject   string    `db:"subject" json:"subject"`
	Sender    string    `db:"sender" json:"sender"`
	Rating    *int      `db:"rating" json:"rating,omitempty"`
	Category  string    `db:"category" json:"category"`
	Action    string    `db:"action" json:"action"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
