package imap

import (
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/vdavid/mailpilot/internal/models"
)

// Well-known sent folder names, tried in order when the server does not
// advertise a \Sent folder.
var sentFolderCandidates = []string{
	"[Gmail]/Sent Mail",
	"Sent",
	"Sent Items",
	"Sent Messages",
}

// ResolveFolder returns the folder to poll for role. An explicitly configured
// sent folder wins; otherwise SPECIAL-USE attributes, then well-known names.
func (s *Session) ResolveFolder(role models.MailboxRole, configured string) (string, error) {
	if role == models.RoleInbox {
		return "INBOX", nil
	}
	if configured != "" {
		return configured, nil
	}

	if err := s.alive(); err != nil {
		return "", err
	}

	folders, err := listFolders(s.client)
	if err != nil {
		return "", &FetchError{Err: err}
	}

	return pickSentFolder(folders)
}

func listFolders(c imapLister) ([]*imap.MailboxInfo, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var folders []*imap.MailboxInfo
	for m := range mailboxes {
		folders = append(folders, m)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	return folders, nil
}

type imapLister interface {
	List(ref, name string, ch chan *imap.MailboxInfo) error
}

func pickSentFolder(folders []*imap.MailboxInfo) (string, error) {
	names := make(map[string]bool, len(folders))
	for _, f := range folders {
		for _, attr := range f.Attributes {
			if attr == imap.SentAttr {
				return f.Name, nil
			}
		}
		names[f.Name] = true
	}

	for _, candidate := range sentFolderCandidates {
		if names[candidate] {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no sent folder: %w", ErrFolderNotFound)
}
