package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nhle/mail-triage/internal/mailbox"
)

// FakeMessage is one message held by a FakeMailbox.
type FakeMessage struct {
	UID     uint32
	Subject string
	From    string
	Date    time.Time
	Flags   []string
	Body    string
}

// FakeMailbox is an in-memory IMAP server. It implements mailbox.Dialer;
// every Dial returns a session over the same folders. Messages in INBOX
// are ordered oldest first, so sequence number n is Inbox()[n-1].
type FakeMailbox struct {
	mu      sync.Mutex
	folders map[string][]*FakeMessage
	nextUID uint32
	ops     []string

	// Failure injection.
	DialErr   error
	OpenErr   error
	FetchErr  map[uint32]error // by sequence number
	BodyErr   map[uint32]error // by UID
	MoveErr   map[string]error // by destination folder name
	StoreErr  error
	FlagInErr error
	CreateErr error

	Dials  int
	Closes int
}

// NewFakeMailbox returns a mailbox with an empty INBOX and the given
// extra folders (full names, e.g. "Junk" or "INBOX/Archived").
func NewFakeMailbox(folders ...string) *FakeMailbox {
	fm := &FakeMailbox{
		folders: map[string][]*FakeMessage{mailbox.Inbox: nil},
		nextUID: 1,
	}
	for _, f := range folders {
		fm.folders[f] = nil
	}
	return fm
}

// Deliver appends a message to INBOX, assigning it the next UID.
func (fm *FakeMailbox) Deliver(msg FakeMessage) uint32 {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	msg.UID = fm.nextUID
	fm.nextUID++
	m := msg
	fm.folders[mailbox.Inbox] = append(fm.folders[mailbox.Inbox], &m)
	return m.UID
}

// Messages returns a copy of the messages in folder.
func (fm *FakeMailbox) Messages(folder string) []FakeMessage {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	var out []FakeMessage
	for _, m := range fm.folders[folder] {
		c := *m
		c.Flags = slices.Clone(m.Flags)
		out = append(out, c)
	}
	return out
}

// Find returns the folder and message whose subject equals subject.
func (fm *FakeMailbox) Find(subject string) (string, FakeMessage, bool) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	for name, msgs := range fm.folders {
		for _, m := range msgs {
			if m.Subject == subject {
				c := *m
				c.Flags = slices.Clone(m.Flags)
				return name, c, true
			}
		}
	}
	return "", FakeMessage{}, false
}

// HasFolder reports whether name exists.
func (fm *FakeMailbox) HasFolder(name string) bool {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	_, ok := fm.folders[name]
	return ok
}

// Ops returns the mutations performed so far, e.g. "move 3 Junk".
func (fm *FakeMailbox) Ops() []string {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return slices.Clone(fm.ops)
}

// Dial implements mailbox.Dialer.
func (fm *FakeMailbox) Dial(ctx context.Context) (mailbox.Session, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fm.DialErr != nil {
		return nil, fm.DialErr
	}
	fm.Dials++
	return &fakeSession{fm: fm}, nil
}

type fakeSession struct {
	fm       *FakeMailbox
	selected string
}

func (s *fakeSession) OpenInbox(context.Context) (int, error) {
	s.fm.mu.Lock()
	defer s.fm.mu.Unlock()

	if s.fm.OpenErr != nil {
		return 0, s.fm.OpenErr
	}
	s.selected = mailbox.Inbox
	return len(s.fm.folders[mailbox.Inbox]), nil
}

func (s *fakeSession) Folder(_ context.Context, name string) (*mailbox.Folder, error) {
	s.fm.mu.Lock()
	defer s.fm.mu.Unlock()

	if _, ok := s.fm.folders[name]; ok {
		return &mailbox.Folder{Name: name}, nil
	}
	return nil, nil
}

func (s *fakeSession) Subfolder(ctx context.Context, name string) (*mailbox.Folder, error) {
	return s.Folder(ctx, mailbox.Inbox+"/"+name)
}

func (s *fakeSession) CreateFolder(_ context.Context, name string) (*mailbox.Folder, error) {
	s.fm.mu.Lock()
	defer s.fm.mu.Unlock()

	if s.fm.CreateErr != nil {
		return nil, s.fm.CreateErr
	}
	full := mailbox.Inbox + "/" + name
	if _, ok := s.fm.folders[full]; ok {
		return nil, fmt.Errorf("mailbox %s already exists", full)
	}
	s.fm.folders[full] = nil
	s.fm.ops = append(s.fm.ops, "create "+full)
	return &mailbox.Folder{Name: full}, nil
}

func (s *fakeSession) Fetch(_ context.Context, seq uint32) (*mailbox.Summary, error) {
	s.fm.mu.Lock()
	defer s.fm.mu.Unlock()

	if err := s.fm.FetchErr[seq]; err != nil {
		return nil, err
	}
	msgs := s.fm.folders[s.selected]
	if seq == 0 || int(seq) > len(msgs) {
		return nil, nil
	}
	m := msgs[seq-1]
	return &mailbox.Summary{
		SeqNum:  seq,
		UID:     m.UID,
		Subject: m.Subject,
		From:    m.From,
		Date:    m.Date,
		Flags:   slices.Clone(m.Flags),
	}, nil
}

func (s *fakeSession) FetchText(_ context.Context, uid uint32) (string, bool, error) {
	s.fm.mu.Lock()
	defer s.fm.mu.Unlock()

	if err := s.fm.BodyErr[uid]; err != nil {
		return "", false, err
	}
	_, m := s.fm.find(s.selected, uid)
	if m == nil {
		return "", false, fmt.Errorf("message UID %d not found", uid)
	}
	return m.Body, m.Body != "", nil
}

func (s *fakeSession) Move(_ context.Context, uid uint32, dest *mailbox.Folder) (uint32, error) {
	s.fm.mu.Lock()
	defer s.fm.mu.Unlock()

	if err := s.fm.MoveErr[dest.Name]; err != nil {
		return 0, err
	}
	if _, ok := s.fm.folders[dest.Name]; !ok {
		return 0, fmt.Errorf("mailbox %s does not exist", dest.Name)
	}
	i, m := s.fm.find(s.selected, uid)
	if m == nil {
		return 0, fmt.Errorf("message UID %d not found", uid)
	}

	src := s.fm.folders[s.selected]
	s.fm.folders[s.selected] = append(src[:i:i], src[i+1:]...)

	moved := *m
	moved.UID = s.fm.nextUID
	s.fm.nextUID++
	s.fm.folders[dest.Name] = append(s.fm.folders[dest.Name], &moved)
	s.fm.ops = append(s.fm.ops, fmt.Sprintf("move %d %s", uid, dest.Name))
	return moved.UID, nil
}

func (s *fakeSession) AddFlags(_ context.Context, uid uint32, flags ...string) error {
	s.fm.mu.Lock()
	defer s.fm.mu.Unlock()

	if s.fm.StoreErr != nil {
		return s.fm.StoreErr
	}
	return s.fm.addFlags(s.selected, uid, flags)
}

func (s *fakeSession) FlagIn(_ context.Context, dest *mailbox.Folder, uid uint32, flags ...string) error {
	s.fm.mu.Lock()
	defer s.fm.mu.Unlock()

	if s.fm.FlagInErr != nil {
		return s.fm.FlagInErr
	}
	msgs := s.fm.folders[dest.Name]
	if uid == 0 {
		if len(msgs) == 0 {
			return fmt.Errorf("%s is empty", dest.Name)
		}
		uid = msgs[len(msgs)-1].UID
	}
	return s.fm.addFlags(dest.Name, uid, flags)
}

func (s *fakeSession) Close() error {
	s.fm.mu.Lock()
	defer s.fm.mu.Unlock()
	s.fm.Closes++
	return nil
}

func (fm *FakeMailbox) find(folder string, uid uint32) (int, *FakeMessage) {
	for i, m := range fm.folders[folder] {
		if m.UID == uid {
			return i, m
		}
	}
	return -1, nil
}

func (fm *FakeMailbox) addFlags(folder string, uid uint32, flags []string) error {
	_, m := fm.find(folder, uid)
	if m == nil {
		return fmt.Errorf("message UID %d not found in %s", uid, folder)
	}
	for _, f := range flags {
		if !slices.Contains(m.Flags, f) {
			m.Flags = append(m.Flags, f)
		}
	}
	fm.ops = append(fm.ops, fmt.Sprintf("flag %d %s %s", uid, folder, strings.Join(flags, " ")))
	return nil
}
