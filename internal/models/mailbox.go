package models

import "time"

// MailboxRole tells whether a polled folder holds inbound or previously sent mail.
type MailboxRole string

const (
	RoleInbox MailboxRole = "inbox"
	RoleSent  MailboxRole = "sent"
)

// Roles lists the roles polled on every cycle, in order.
var Roles = []MailboxRole{RoleInbox, RoleSent}

const (
	ConnectionStatusConnected    = "connected"
	ConnectionStatusDisconnected = "disconnected"
	ConnectionStatusError        = "error"
)

const (
	DefaultIMAPHost            = "imap.gmail.com"
	DefaultIMAPPort            = 993
	DefaultSMTPHost            = "smtp.gmail.com"
	DefaultSMTPPort            = 465
	DefaultConfidenceThreshold = 0.8
)

// MailboxConfig is a monitored mailbox registration.
// The core only ever updates ConnectionStatus and LastSyncAt.
type MailboxConfig struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	EmailAddress        string     `json:"email_address"`
	Username            string     `json:"username,omitempty"`
	EncryptedPassword   []byte     `json:"-"`
	Password            string     `json:"-"`
	IMAPHost            string     `json:"imap_host"`
	IMAPPort            int        `json:"imap_port"`
	SMTPHost            string     `json:"smtp_host"`
	SMTPPort            int        `json:"smtp_port"`
	SentFolder          string     `json:"sent_folder,omitempty"`
	Enabled             bool       `json:"enabled"`
	AutoReplyEnabled    bool       `json:"auto_reply_enabled"`
	ConfidenceThreshold float64    `json:"confidence_threshold"`
	ConnectionStatus    string     `json:"connection_status"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// LoginName is the account name for IMAP and SMTP authentication. Most
// providers use the address itself.
func (c *MailboxConfig) LoginName() string {
	if c.Username != "" {
		return c.Username
	}
	return c.EmailAddress
}

// IMAPAddress returns host:port of the retrieval server, falling back to Gmail.
func (c *MailboxConfig) IMAPAddress() (string, int) {
	host, port := c.IMAPHost, c.IMAPPort
	if host == "" {
		host = DefaultIMAPHost
	}
	if port == 0 {
		port = DefaultIMAPPort
	}
	return host, port
}

// SMTPAddress returns host:port of the submission server, falling back to Gmail.
func (c *MailboxConfig) SMTPAddress() (string, int) {
	host, port := c.SMTPHost, c.SMTPPort
	if host == "" {
		host = DefaultSMTPHost
	}
	if port == 0 {
		port = DefaultSMTPPort
	}
	return host, port
}
