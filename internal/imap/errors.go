package imap

import (
	"errors"
	"fmt"
)

// ErrFolderNotFound is returned when no folder on the server serves a role.
var ErrFolderNotFound = errors.New("folder not found")

// ConnectionError covers dial, TLS and authentication failures, as well as a
// session the server has already dropped.
type ConnectionError struct {
	Mailbox string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("imap %s for %s: %v", e.Op, e.Mailbox, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// FetchError is a failed or empty response while listing or fetching.
// UID is zero for folder-level failures.
type FetchError struct {
	Folder string
	UID    uint32
	Err    error
}

func (e *FetchError) Error() string {
	if e.UID == 0 {
		return fmt.Sprintf("imap fetch in %q: %v", e.Folder, e.Err)
	}
	return fmt.Sprintf("imap fetch of uid %d in %q: %v", e.UID, e.Folder, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
