package mailbox

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestBodyText(t *testing.T) {
	cases := []struct {
		name   string
		raw    []byte
		want   string
		wantOK bool
	}{
		{
			name: "plain single part",
			raw: crlf(`From: a@example.com
Subject: hi
Content-Type: text/plain; charset=utf-8

Bills are due.
`),
			want:   "Bills are due.",
			wantOK: true,
		},
		{
			name: "multipart prefers plain",
			raw: crlf(`From: a@example.com
Subject: hi
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary=XX

--XX
Content-Type: text/html

<p>html body</p>
--XX
Content-Type: text/plain

plain body
--XX--
`),
			want:   "plain body",
			wantOK: true,
		},
		{
			name: "html only falls back to stripped text",
			raw: crlf(`From: a@example.com
Subject: hi
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary=XX

--XX
Content-Type: text/html

<html><head><style>p{}</style></head><body><p>Hello &amp; welcome</p></body></html>
--XX--
`),
			want:   "Hello & welcome",
			wantOK: true,
		},
		{
			name: "attachment only",
			raw: crlf(`From: a@example.com
Subject: hi
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary=XX

--XX
Content-Type: application/pdf
Content-Disposition: attachment; filename=a.pdf

%PDF
--XX--
`),
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := bodyText(tc.raw)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStripHTML(t *testing.T) {
	in := "<div>One</div><div>Two<br>Three</div>\n\n\n\n<script>alert(1)</script>&lt;end&gt;"
	assert.Equal(t, "One\nTwo\nThree\n\n<end>", stripHTML(in))
	assert.Equal(t, "", stripHTML(""))
}

func TestSummaryHasFlag(t *testing.T) {
	s := Summary{Flags: []string{FlagSeen}}
	assert.True(t, s.HasFlag(FlagSeen))
	assert.False(t, s.HasFlag(FlagFlagged))
}

func TestAuthError(t *testing.T) {
	cause := errors.New("NO [AUTHENTICATIONFAILED] invalid credentials")
	err := error(&AuthError{Username: "me@example.com", Err: cause})

	wrapped := errors.Join(errors.New("cycle"), err)
	require.True(t, IsAuthError(wrapped))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "me@example.com")
	assert.False(t, IsAuthError(cause))
}

func TestIMAPDialerAddr(t *testing.T) {
	d := NewIMAPDialer("imap.example.com", 993, "u", "p", true)
	assert.Equal(t, "imap.example.com:993", d.Addr())
}
