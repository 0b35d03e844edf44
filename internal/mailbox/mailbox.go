// Package mailbox is the IMAP capability the triage cycle runs against.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/emersion/go-imap/v2"
)

// System flags used by triage.
const (
	FlagSeen    = `\Seen`
	FlagFlagged = `\Flagged`
)

// Inbox is the name of the mailbox every cycle starts in.
const Inbox = "INBOX"

// Folder is a resolved mailbox that messages can be moved into.
type Folder struct {
	Name string
}

// Summary is the envelope-level view of one message in the open mailbox.
type Summary struct {
	SeqNum  uint32
	UID     uint32
	Subject string
	From    string
	Date    time.Time
	Flags   []string
}

// HasFlag reports whether the message carries flag.
func (s Summary) HasFlag(flag string) bool {
	return slices.Contains(s.Flags, flag)
}

// Dialer opens authenticated sessions.
type Dialer interface {
	// Dial connects and logs in. Login failures are returned as *AuthError.
	Dial(ctx context.Context) (Session, error)
}

// Session is one authenticated connection. It is not safe for concurrent use.
type Session interface {
	// OpenInbox selects INBOX read-write and returns its message count.
	OpenInbox(ctx context.Context) (int, error)

	// Folder looks up a mailbox by full name; nil when it does not exist.
	Folder(ctx context.Context, name string) (*Folder, error)

	// Subfolder looks up a direct child of INBOX; nil when it does not exist.
	Subfolder(ctx context.Context, name string) (*Folder, error)

	// CreateFolder creates name as a child of INBOX.
	CreateFolder(ctx context.Context, name string) (*Folder, error)

	// Fetch returns the summary at sequence number seq in INBOX, or nil
	// when the server has no such message.
	Fetch(ctx context.Context, seq uint32) (*Summary, error)

	// FetchText returns the decoded text body of the message. ok is false
	// when the message has no text part.
	FetchText(ctx context.Context, uid uint32) (text string, ok bool, err error)

	// Move moves the message into dest and returns its UID there, or 0
	// when the server does not report one.
	Move(ctx context.Context, uid uint32, dest *Folder) (uint32, error)

	// AddFlags adds flags to the message in INBOX.
	AddFlags(ctx context.Context, uid uint32, flags ...string) error

	// FlagIn adds flags to a message in another folder and reselects
	// INBOX. uid 0 addresses the newest message in dest.
	FlagIn(ctx context.Context, dest *Folder, uid uint32, flags ...string) error

	// Close logs out and releases the connection.
	Close() error
}

// AuthError indicates that the server rejected the configured credentials.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsCommandError reports whether err is a tagged NO or BAD response. The
// connection is still usable after one.
func IsCommandError(err error) bool {
	var imapErr *imap.Error
	return errors.As(err, &imapErr)
}
