package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/vdavid/mailpilot/internal/models"
)

// MailboxDialer opens an authenticated session for a mailbox.
type MailboxDialer interface {
	Dial(ctx context.Context, cfg *models.MailboxConfig) (MailboxSession, error)
}

// DialerOptions configures how sessions are opened.
type DialerOptions struct {
	// UseTLS is true in production; local test servers speak plain TCP.
	UseTLS bool
	// Timeout bounds the dial and every command on the session.
	Timeout time.Duration
}

// Dialer opens one session per call. Sessions are never pooled: a worker
// opens a session for a cycle and closes it before sleeping.
type Dialer struct {
	opts DialerOptions
}

var _ MailboxDialer = (*Dialer)(nil)

// NewDialer creates a Dialer.
func NewDialer(opts DialerOptions) *Dialer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Dialer{opts: opts}
}

// Dial connects and logs in. Every failure is a *ConnectionError.
// Cancelling ctx after Dial returns terminates the connection, which unblocks
// any command in flight.
func (d *Dialer) Dial(ctx context.Context, cfg *models.MailboxConfig) (MailboxSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ConnectionError{Mailbox: cfg.EmailAddress, Op: "dial", Err: err}
	}

	host, port := cfg.IMAPAddress()
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	c, err := connectToIMAP(addr, host, d.opts)
	if err != nil {
		return nil, &ConnectionError{Mailbox: cfg.EmailAddress, Op: "dial", Err: err}
	}
	c.Timeout = d.opts.Timeout

	if err := c.Login(cfg.LoginName(), cfg.Password); err != nil {
		_ = c.Terminate()
		return nil, &ConnectionError{Mailbox: cfg.EmailAddress, Op: "login", Err: fmt.Errorf("failed to authenticate: %w", err)}
	}

	s := &Session{client: c, mailbox: cfg.EmailAddress}
	s.stopWatch = context.AfterFunc(ctx, func() {
		_ = c.Terminate()
	})

	return s, nil
}

func connectToIMAP(addr, host string, opts DialerOptions) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: opts.Timeout,
	}

	if opts.UseTLS {
		c, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: host})
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return c, nil
}
