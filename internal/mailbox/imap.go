package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPDialer connects to an IMAP server with go-imap v2.
type IMAPDialer struct {
	host     string
	port     int
	username string
	password string
	tls      bool
}

// NewIMAPDialer creates a dialer for the given server and credentials.
// tls selects implicit TLS; otherwise the connection is upgraded with STARTTLS.
func NewIMAPDialer(host string, port int, username, password string, tls bool) *IMAPDialer {
	return &IMAPDialer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// Addr returns host:port.
func (d *IMAPDialer) Addr() string {
	return net.JoinHostPort(d.host, strconv.Itoa(d.port))
}

// Dial establishes a connection, authenticates, and returns the session.
// Cancelling ctx closes the underlying connection, which unblocks any
// command in flight.
func (d *IMAPDialer) Dial(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := d.Addr()

	var client *imapclient.Client
	var err error

	if d.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })

	if err := client.Login(d.username, d.password).Wait(); err != nil {
		stop()
		_ = client.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &AuthError{Username: d.username, Err: err}
	}

	return &imapSession{client: client, stop: stop}, nil
}

type imapSession struct {
	client *imapclient.Client
	stop   func() bool
	delim  rune
}

func (s *imapSession) OpenInbox(ctx context.Context) (int, error) {
	data, err := s.client.Select(Inbox, nil).Wait()
	if err != nil {
		return 0, s.wrap(ctx, fmt.Errorf("selecting INBOX: %w", err))
	}

	list, err := s.client.List("", Inbox, nil).Collect()
	if err == nil && len(list) > 0 {
		s.delim = list[0].Delim
	}

	return int(data.NumMessages), nil
}

func (s *imapSession) Folder(ctx context.Context, name string) (*Folder, error) {
	list, err := s.client.List("", name, nil).Collect()
	if err != nil {
		return nil, s.wrap(ctx, fmt.Errorf("listing %s: %w", name, err))
	}
	for _, item := range list {
		if isNonExistent(item) {
			continue
		}
		return &Folder{Name: item.Mailbox}, nil
	}
	return nil, nil
}

func (s *imapSession) Subfolder(ctx context.Context, name string) (*Folder, error) {
	return s.Folder(ctx, s.childName(name))
}

func (s *imapSession) CreateFolder(ctx context.Context, name string) (*Folder, error) {
	full := s.childName(name)
	if err := s.client.Create(full, nil).Wait(); err != nil {
		return nil, s.wrap(ctx, fmt.Errorf("creating %s: %w", full, err))
	}
	return &Folder{Name: full}, nil
}

func (s *imapSession) Fetch(ctx context.Context, seq uint32) (*Summary, error) {
	opts := &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
	}

	msgs, err := s.client.Fetch(imap.SeqSetNum(seq), opts).Collect()
	if err != nil {
		return nil, s.wrap(ctx, fmt.Errorf("fetching message %d: %w", seq, err))
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	return summaryFromBuffer(msgs[0]), nil
}

func (s *imapSession) FetchText(ctx context.Context, uid uint32) (string, bool, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	opts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	msgs, err := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), opts).Collect()
	if err != nil {
		return "", false, s.wrap(ctx, fmt.Errorf("fetching body of UID %d: %w", uid, err))
	}
	if len(msgs) == 0 {
		return "", false, fmt.Errorf("message UID %d not found", uid)
	}

	raw := msgs[0].FindBodySection(section)
	if raw == nil {
		return "", false, nil
	}

	text, ok := bodyText(raw)
	return text, ok, nil
}

func (s *imapSession) Move(ctx context.Context, uid uint32, dest *Folder) (uint32, error) {
	if dest == nil {
		return 0, errors.New("move: no destination folder")
	}

	data, err := s.client.Move(imap.UIDSetNum(imap.UID(uid)), dest.Name).Wait()
	if err != nil {
		return 0, s.wrap(ctx, fmt.Errorf("moving UID %d to %s: %w", uid, dest.Name, err))
	}
	if data == nil {
		return 0, nil
	}

	return singleUID(data.DestUIDs), nil
}

func (s *imapSession) AddFlags(ctx context.Context, uid uint32, flags ...string) error {
	storeCmd := s.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  toIMAPFlags(flags),
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return s.wrap(ctx, fmt.Errorf("storing flags on UID %d: %w", uid, err))
	}
	return nil
}

func (s *imapSession) FlagIn(ctx context.Context, dest *Folder, uid uint32, flags ...string) (err error) {
	if dest == nil {
		return errors.New("flag: no folder")
	}

	data, err := s.client.Select(dest.Name, nil).Wait()
	if err != nil {
		return s.wrap(ctx, fmt.Errorf("selecting %s: %w", dest.Name, err))
	}
	defer func() {
		if _, selErr := s.client.Select(Inbox, nil).Wait(); selErr != nil {
			err = errors.Join(err, s.wrap(ctx, fmt.Errorf("reselecting INBOX: %w", selErr)))
		}
	}()

	if uid == 0 {
		if data.NumMessages == 0 {
			return fmt.Errorf("%s is empty", dest.Name)
		}
		newest, err := s.Fetch(ctx, data.NumMessages)
		if err != nil {
			return err
		}
		if newest == nil {
			return fmt.Errorf("newest message in %s not found", dest.Name)
		}
		uid = newest.UID
	}

	return s.AddFlags(ctx, uid, flags...)
}

func (s *imapSession) Close() error {
	defer s.stop()

	err := s.client.Logout().Wait()
	if closeErr := s.client.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// wrap prefers the context error when the connection was torn down by
// cancellation.
func (s *imapSession) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}

func (s *imapSession) childName(name string) string {
	if s.delim == 0 {
		return Inbox + "/" + name
	}
	return Inbox + string(s.delim) + name
}

func isNonExistent(item *imap.ListData) bool {
	for _, attr := range item.Attrs {
		if attr == imap.MailboxAttrNonExistent || attr == imap.MailboxAttrNoSelect {
			return true
		}
	}
	return false
}

func singleUID(set imap.NumSet) uint32 {
	uids, ok := set.(imap.UIDSet)
	if !ok {
		return 0
	}
	nums, ok := uids.Nums()
	if !ok || len(nums) != 1 {
		return 0
	}
	return uint32(nums[0])
}

func toIMAPFlags(flags []string) []imap.Flag {
	out := make([]imap.Flag, len(flags))
	for i, f := range flags {
		out[i] = imap.Flag(f)
	}
	return out
}

// summaryFromBuffer extracts a Summary from a FetchMessageBuffer.
func summaryFromBuffer(buf *imapclient.FetchMessageBuffer) *Summary {
	sum := &Summary{
		SeqNum: buf.SeqNum,
		UID:    uint32(buf.UID),
		Date:   buf.InternalDate,
	}

	if buf.Envelope != nil {
		sum.Subject = buf.Envelope.Subject
		if !buf.Envelope.Date.IsZero() {
			sum.Date = buf.Envelope.Date
		}
		sum.From = formatAddresses(buf.Envelope.From)
	}

	for _, flag := range buf.Flags {
		sum.Flags = append(sum.Flags, string(flag))
	}

	return sum
}

func formatAddresses(addrs []imap.Address) string {
	var out string
	for i, a := range addrs {
		if i > 0 {
			out += ", "
		}
		switch {
		case a.Name != "" && a.Addr() != "":
			out += fmt.Sprintf("%q <%s>", a.Name, a.Addr())
		case a.Name != "":
			out += a.Name
		default:
			out += a.Addr()
		}
	}
	return out
}
