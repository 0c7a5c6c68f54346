package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/vdavid/mailpilot/internal/models"
)

// SendError is any failure to hand a message to the submission server.
type SendError struct {
	Mailbox string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("smtp send for %s: %v", e.Mailbox, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// SenderOptions configures transport security and timeouts.
type SenderOptions struct {
	// UseTLS is true in production; local test servers speak plain TCP.
	UseTLS bool
	// Timeout bounds the dial, the greeting and every command. Defaults to 30s.
	Timeout time.Duration
	// Now is used for the Date header. Defaults to time.Now.
	Now func() time.Time
}

const defaultTimeout = 30 * time.Second

// Sender submits composed messages with the mailbox's own credentials.
type Sender struct {
	opts SenderOptions
}

// NewSender creates a Sender.
func NewSender(opts SenderOptions) *Sender {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Sender{opts: opts}
}

// Send composes msg and submits it through the mailbox's SMTP server. Port
// 465 uses implicit TLS, other ports STARTTLS. The Message-ID of the sent
// message is returned in angle-bracket form. Cancelling ctx closes the
// connection, which aborts any command in flight.
func (s *Sender) Send(ctx context.Context, cfg *models.MailboxConfig, msg *OutgoingMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &SendError{Mailbox: cfg.EmailAddress, Err: err}
	}

	raw, messageID, err := Compose(msg, s.opts.Now())
	if err != nil {
		return "", &SendError{Mailbox: cfg.EmailAddress, Err: err}
	}

	c, err := s.dial(ctx, cfg)
	if err != nil {
		return "", &SendError{Mailbox: cfg.EmailAddress, Err: err}
	}
	defer func() { _ = c.Close() }()

	stopWatch := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stopWatch()

	if err := c.Auth(sasl.NewPlainClient("", cfg.LoginName(), cfg.Password)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return "", &SendError{Mailbox: cfg.EmailAddress, Err: fmt.Errorf("failed to authenticate: %w", err)}
	}

	if err := c.SendMail(msg.From, msg.To, bytes.NewReader(raw)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return "", &SendError{Mailbox: cfg.EmailAddress, Err: fmt.Errorf("failed to submit message: %w", err)}
	}

	_ = c.Quit()

	return messageID, nil
}

// dial connects and completes the greeting, plus STARTTLS when required.
// During the handshake, both ctx and the timeout close the raw connection.
func (s *Sender) dial(ctx context.Context, cfg *models.MailboxConfig) (*gosmtp.Client, error) {
	host, port := cfg.SMTPAddress()
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	tlsConfig := &tls.Config{ServerName: host}

	dialer := &net.Dialer{Timeout: s.opts.Timeout}
	var (
		conn net.Conn
		err  error
	)
	if s.opts.UseTLS && port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	stopWatch := context.AfterFunc(handshakeCtx, func() {
		_ = conn.Close()
	})
	defer stopWatch()

	var c *gosmtp.Client
	if s.opts.UseTLS && port != 465 {
		c, err = gosmtp.NewClientStartTLS(conn, tlsConfig)
	} else {
		c = gosmtp.NewClient(conn)
		// The greeting is read lazily; force it while the handshake watch is armed.
		err = c.Hello("localhost")
	}
	if err != nil {
		_ = conn.Close()
		if ctxErr := handshakeCtx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, fmt.Errorf("failed to greet %s: %w", addr, err)
	}

	c.CommandTimeout = s.opts.Timeout
	c.SubmissionTimeout = 2 * s.opts.Timeout

	return c, nil
}
