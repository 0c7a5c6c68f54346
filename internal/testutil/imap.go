package testutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer is an in-process IMAP server over plain TCP.
// The memory backend has a single user "username"/"password" whose INBOX
// already holds one seen message with UID 6.
type TestIMAPServer struct {
	Server   *server.Server
	Address  string
	Backend  *memory.Backend
	username string
	password string
}

// NewTestIMAPServer starts a server on a random local port and stops it when
// the test finishes.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()

	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		_ = s.Serve(listener)
	}()

	t.Cleanup(func() {
		_ = s.Close()
	})

	return &TestIMAPServer{
		Server:   s,
		Address:  listener.Addr().String(),
		Backend:  be,
		username: "username",
		password: "password",
	}
}

// Username returns the only account the memory backend knows.
func (s *TestIMAPServer) Username() string {
	return s.username
}

// Password returns the password of Username.
func (s *TestIMAPServer) Password() string {
	return s.password
}

// Host returns the listening host.
func (s *TestIMAPServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Address)
	return host
}

// Port returns the listening port.
func (s *TestIMAPServer) Port() int {
	_, port, _ := net.SplitHostPort(s.Address)
	n, _ := strconv.Atoi(port)
	return n
}

// Connect opens a logged-in client for test setup.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	c, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}

	if err := c.Login(s.username, s.password); err != nil {
		_ = c.Logout()
		t.Fatalf("Failed to login: %v", err)
	}

	return c, func() { _ = c.Logout() }
}

// CreateFolder creates a folder for the test user.
func (s *TestIMAPServer) CreateFolder(t *testing.T, name string) {
	t.Helper()

	c, cleanup := s.Connect(t)
	defer cleanup()

	if err := c.Create(name); err != nil {
		t.Fatalf("Failed to create folder %q: %v", name, err)
	}
}

// AppendMessage stores raw in folder with the given flags and returns its UID.
func (s *TestIMAPServer) AppendMessage(t *testing.T, folder, raw string, flags ...string) uint32 {
	t.Helper()

	c, cleanup := s.Connect(t)
	defer cleanup()

	if err := c.Append(folder, flags, time.Now(), strings.NewReader(raw)); err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}

	if _, err := c.Select(folder, true); err != nil {
		t.Fatalf("Failed to select folder %q: %v", folder, err)
	}

	uids, err := c.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		t.Fatalf("Failed to search folder %q: %v", folder, err)
	}
	if len(uids) == 0 {
		t.Fatalf("Message not found after append")
	}

	newest := uids[0]
	for _, uid := range uids {
		if uid > newest {
			newest = uid
		}
	}
	return newest
}

// BuildMessage renders a minimal text/plain RFC 5322 message with CRLF line
// endings. An empty messageID omits the header.
func BuildMessage(messageID, subject, from, to, body string) string {
	var b strings.Builder
	if messageID != "" {
		fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	}
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}
