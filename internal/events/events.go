// Package events fans pipeline events out to browsers and the message bus.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	TypeEmailReceived    = "email.received"
	TypeEmailAutoReplied = "email.auto_replied"
)

// Event is a notification about one processed message. It never carries the
// message body.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	UserID        string    `json:"user_id"`
	MailboxID     string    `json:"mailbox_id"`
	CorrelationID string    `json:"correlation_id"`
	Subject       string    `json:"subject,omitempty"`
	Category      string    `json:"category,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	At            time.Time `json:"at"`
}

// New fills in the id and timestamp.
func New(eventType, userID, mailboxID, correlationID string) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		UserID:        userID,
		MailboxID:     mailboxID,
		CorrelationID: correlationID,
		At:            time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
