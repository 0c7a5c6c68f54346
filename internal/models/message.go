package models

import "time"

const PriorityNormal = "normal"

const (
	SentStatusSent   = "sent"
	SentStatusFailed = "failed"

	DeliveryStatusSuccess = "success"
)

// IncomingMessage is an inbound message admitted exactly once per correlation id.
type IncomingMessage struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	MailboxID      string         `json:"mailbox_id"`
	SenderAddress  string         `json:"sender_address"`
	SenderName     string         `json:"sender_name"`
	Recipient      string         `json:"recipient"`
	Subject        string         `json:"subject"`
	BodyText       string         `json:"body_text"`
	BodyHTML       string         `json:"body_html,omitempty"`
	ReceivedAt     time.Time      `json:"received_at"`
	IsRead         bool           `json:"is_read"`
	IsStarred      bool           `json:"is_starred"`
	HasAttachments bool           `json:"has_attachments"`
	Priority       string         `json:"priority"`
	Labels         []string       `json:"labels"`
	CorrelationID  string         `json:"correlation_id"`
	CategoryID     *string        `json:"category_id,omitempty"`
	Analysis       map[string]any `json:"analysis,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// SentMessage is an outgoing message, either an auto-reply or mail found in the sent folder.
type SentMessage struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	MailboxID         string    `json:"mailbox_id"`
	IncomingMessageID *string   `json:"incoming_message_id,omitempty"`
	InReplyTo         string    `json:"in_reply_to,omitempty"`
	MessageID         string    `json:"message_id"`
	Subject           string    `json:"subject"`
	SentAt            time.Time `json:"sent_at"`
	DeliveryStatus    string    `json:"delivery_status"`
	Recipients        []string  `json:"recipients"`
	Content           string    `json:"content"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// NormalizedMessage is the decoded, plain-text view of a raw message.
type NormalizedMessage struct {
	Sender         string
	SenderAddress  string
	SenderName     string
	Recipient      string
	Recipients     []string
	Subject        string
	Body           string
	HTMLBody       string
	CorrelationID  string
	Date           *time.Time
	HasAttachments bool
}
