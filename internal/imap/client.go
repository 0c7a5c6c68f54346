package imap

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/vdavid/mailpilot/internal/models"
)

// SearchFilter selects which messages ListMessageIDs considers.
type SearchFilter string

const (
	SearchAll    SearchFilter = "all"
	SearchUnseen SearchFilter = "unseen"
)

// FetchedMessage is one message as retrieved from the server.
type FetchedMessage struct {
	UID          uint32
	Flags        []string
	InternalDate time.Time
	Raw          []byte
}

// HasFlag reports whether the server returned the given flag.
func (m *FetchedMessage) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// MailboxSession is an open, authenticated retrieval session. Callers must
// Close it on every path.
type MailboxSession interface {
	ResolveFolder(role models.MailboxRole, configured string) (string, error)
	ListMessageIDs(folder string, filter SearchFilter, limit int) ([]uint32, error)
	FetchMessage(uid uint32) (*FetchedMessage, error)
	Close() error
}

// Session is a MailboxSession backed by a go-imap client. It is not safe for
// concurrent use; each worker owns its own session.
type Session struct {
	client    *client.Client
	mailbox   string
	selected  string
	stopWatch func() bool
}

var _ MailboxSession = (*Session)(nil)

// ListMessageIDs selects folder read-only and returns the newest limit UIDs
// matching filter, oldest first.
func (s *Session) ListMessageIDs(folder string, filter SearchFilter, limit int) ([]uint32, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	if err := s.selectFolder(folder); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	if filter == SearchUnseen {
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, &FetchError{Folder: folder, Err: fmt.Errorf("search failed: %w", err)}
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	return uids, nil
}

// FetchMessage returns the full raw message for uid in the selected folder.
// The body is fetched with PEEK so the \Seen flag is left alone.
func (s *Session) FetchMessage(uid uint32) (*FetchedMessage, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	if s.selected == "" {
		return nil, &FetchError{UID: uid, Err: errors.New("no folder selected")}
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		section.FetchItem(),
		imap.FetchFlags,
		imap.FetchUid,
		imap.FetchInternalDate,
	}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		if msg == nil {
			msg = m
		}
	}

	if err := <-done; err != nil {
		if s.client.State() == imap.LogoutState {
			return nil, &ConnectionError{Mailbox: s.mailbox, Op: "fetch", Err: err}
		}
		return nil, &FetchError{Folder: s.selected, UID: uid, Err: err}
	}

	if msg == nil {
		return nil, &FetchError{Folder: s.selected, UID: uid, Err: errors.New("server did not return message")}
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, &FetchError{Folder: s.selected, UID: uid, Err: errors.New("server returned no body")}
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{Folder: s.selected, UID: uid, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	return &FetchedMessage{
		UID:          msg.Uid,
		Flags:        msg.Flags,
		InternalDate: msg.InternalDate,
		Raw:          raw,
	}, nil
}

// Close logs out, falling back to dropping the connection.
func (s *Session) Close() error {
	if s.stopWatch != nil {
		s.stopWatch()
	}

	if s.client.State() == imap.LogoutState {
		return nil
	}

	if err := s.client.Logout(); err != nil {
		_ = s.client.Terminate()
		if errors.Is(err, client.ErrAlreadyLoggedOut) {
			return nil
		}
		return fmt.Errorf("failed to log out: %w", err)
	}

	return nil
}

func (s *Session) selectFolder(folder string) error {
	if _, err := s.client.Select(folder, true); err != nil {
		s.selected = ""
		if s.client.State() == imap.LogoutState {
			return &ConnectionError{Mailbox: s.mailbox, Op: "select", Err: err}
		}
		return &FetchError{Folder: folder, Err: fmt.Errorf("failed to select folder: %w", err)}
	}
	s.selected = folder
	return nil
}

func (s *Session) alive() error {
	if s.client.State() == imap.LogoutState {
		return &ConnectionError{Mailbox: s.mailbox, Op: "session", Err: errors.New("connection closed")}
	}
	return nil
}
