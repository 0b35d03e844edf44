package mailbox

import (
	"errors"
	"fmt"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	no := &imap.Error{Type: imap.StatusResponseTypeNo, Text: "message could not be parsed"}
	auth := &AuthError{Username: "me", Err: &imap.Error{Type: imap.StatusResponseTypeNo, Text: "bad password"}}

	cases := []struct {
		name    string
		err     error
		command bool
		auth    bool
	}{
		{name: "tagged NO", err: no, command: true},
		{name: "wrapped NO", err: fmt.Errorf("fetching message 3: %w", no), command: true},
		{name: "transport", err: errors.New("connection reset by peer")},
		{name: "login rejected", err: auth, command: true, auth: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.command, IsCommandError(tc.err))
			assert.Equal(t, tc.auth, IsAuthError(tc.err))
		})
	}
}
