package models

import "time"

const (
	ActivityEmailReceived    = "email_received"
	ActivityAutoReplySent    = "auto_reply_sent"
	ActivityAutoReplySkipped = "auto_reply_skipped"
	ActivityAutoReplyFailed  = "auto_reply_failed"
)

// ActivityLog is an audit row describing what the pipeline did with a message.
type ActivityLog struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	MailboxID      string         `json:"mailbox_id"`
	Type           string         `json:"type"`
	CorrelationID  string         `json:"correlation_id"`
	Subject        string         `json:"subject"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Action         string         `json:"action"`
	Category       string         `json:"category,omitempty"`
	ResponseTimeMS *int64         `json:"response_time_ms,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
