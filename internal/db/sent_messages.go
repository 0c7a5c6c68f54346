package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/mailpilot/internal/models"
)

const insertSentMessage = `
	INSERT INTO sent_messages (
		user_id,
		mailbox_id,
		incoming_message_id,
		in_reply_to,
		message_id,
		subject,
		sent_at,
		delivery_status,
		recipients,
		content,
		status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (user_id, message_id) DO NOTHING
	RETURNING id, created_at`

// AdmitSentMessage records a message found in the sent folder. Like incoming
// admission it returns ErrAlreadyProcessed for a message id seen before.
func AdmitSentMessage(ctx context.Context, pool *pgxpool.Pool, msg *models.SentMessage) error {
	return insertSent(ctx, pool, "admit sent message", msg)
}

// RecordSentMessage records an auto-reply that was handed to the SMTP server.
// A duplicate message id is not an error here because the id was generated locally.
func RecordSentMessage(ctx context.Context, pool *pgxpool.Pool, msg *models.SentMessage) error {
	err := insertSent(ctx, pool, "record sent message", msg)
	if errors.Is(err, ErrAlreadyProcessed) {
		return nil
	}
	return err
}

func insertSent(ctx context.Context, pool *pgxpool.Pool, op string, msg *models.SentMessage) error {
	recipients := msg.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	status := msg.Status
	if status == "" {
		status = models.SentStatusSent
	}

	err := pool.QueryRow(ctx, insertSentMessage,
		msg.UserID,
		msg.MailboxID,
		msg.IncomingMessageID,
		msg.InReplyTo,
		msg.MessageID,
		msg.Subject,
		msg.SentAt,
		msg.DeliveryStatus,
		recipients,
		msg.Content,
		status,
	).Scan(&msg.ID, &msg.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAlreadyProcessed
	}
	if err != nil {
		return storageError(op, err)
	}

	msg.Recipients = recipients
	msg.Status = status
	return nil
}

// ListSentMessagesForIncoming returns the replies linked to an incoming message.
func ListSentMessagesForIncoming(ctx context.Context, pool *pgxpool.Pool, incomingMessageID string) ([]models.SentMessage, error) {
	rows, err := pool.Query(ctx, `
		SELECT
			id,
			user_id,
			mailbox_id,
			incoming_message_id,
			in_reply_to,
			message_id,
			subject,
			sent_at,
			delivery_status,
			recipients,
			content,
			status,
			created_at
		FROM sent_messages
		WHERE incoming_message_id = $1
		ORDER BY sent_at
	`, incomingMessageID)
	if err != nil {
		return nil, storageError("list sent messages", err)
	}
	defer rows.Close()

	var messages []models.SentMessage
	for rows.Next() {
		var m models.SentMessage
		if err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.MailboxID,
			&m.IncomingMessageID,
			&m.InReplyTo,
			&m.MessageID,
			&m.Subject,
			&m.SentAt,
			&m.DeliveryStatus,
			&m.Recipients,
			&m.Content,
			&m.Status,
			&m.CreatedAt,
		); err != nil {
			return nil, storageError("list sent messages", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("list sent messages", err)
	}

	return messages, nil
}
