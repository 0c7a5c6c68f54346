package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/mailpilot/internal/models"
)

// AdmitIncomingMessage inserts msg unless a message with the same correlation
// id already exists for the owner, in which case ErrAlreadyProcessed is
// returned and nothing is written. The check and the insert are a single
// statement, so concurrent admissions of the same id yield exactly one row.
func AdmitIncomingMessage(ctx context.Context, pool *pgxpool.Pool, msg *models.IncomingMessage) error {
	labels := msg.Labels
	if labels == nil {
		labels = []string{}
	}
	priority := msg.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	analysis, err := marshalJSON(msg.Analysis)
	if err != nil {
		return storageError("encode analysis", err)
	}

	err = pool.QueryRow(ctx, `
		INSERT INTO incoming_messages (
			user_id,
			mailbox_id,
			sender_address,
			sender_name,
			recipient,
			subject,
			body_text,
			body_html,
			received_at,
			is_read,
			is_starred,
			has_attachments,
			priority,
			labels,
			correlation_id,
			category_id,
			analysis
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (user_id, correlation_id) DO NOTHING
		RETURNING id, created_at
	`,
		msg.UserID,
		msg.MailboxID,
		msg.SenderAddress,
		msg.SenderName,
		msg.Recipient,
		msg.Subject,
		msg.BodyText,
		msg.BodyHTML,
		msg.ReceivedAt,
		msg.IsRead,
		msg.IsStarred,
		msg.HasAttachments,
		priority,
		labels,
		msg.CorrelationID,
		msg.CategoryID,
		analysis,
	).Scan(&msg.ID, &msg.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAlreadyProcessed
	}
	if err != nil {
		return storageError("admit incoming message", err)
	}

	msg.Priority = priority
	msg.Labels = labels
	return nil
}

// StoreCategory records the classification result on an admitted message.
func StoreCategory(ctx context.Context, pool *pgxpool.Pool, messageID string, categoryID *string, analysis map[string]any) error {
	encoded, err := marshalJSON(analysis)
	if err != nil {
		return storageError("encode analysis", err)
	}

	tag, err := pool.Exec(ctx, `
		UPDATE incoming_messages
		SET category_id = $2, analysis = $3
		WHERE id = $1
	`, messageID, categoryID, encoded)

	if err != nil {
		return storageError("store category", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// GetIncomingMessageByCorrelationID returns the admitted message with the given id.
func GetIncomingMessageByCorrelationID(ctx context.Context, pool *pgxpool.Pool, userID, correlationID string) (*models.IncomingMessage, error) {
	var msg models.IncomingMessage
	var analysis []byte

	err := pool.QueryRow(ctx, `
		SELECT
			id,
			user_id,
			mailbox_id,
			sender_address,
			sender_name,
			recipient,
			subject,
			body_text,
			body_html,
			received_at,
			is_read,
			is_starred,
			has_attachments,
			priority,
			labels,
			correlation_id,
			category_id,
			analysis,
			created_at
		FROM incoming_messages
		WHERE user_id = $1 AND correlation_id = $2
	`, userID, correlationID).Scan(
		&msg.ID,
		&msg.UserID,
		&msg.MailboxID,
		&msg.SenderAddress,
		&msg.SenderName,
		&msg.Recipient,
		&msg.Subject,
		&msg.BodyText,
		&msg.BodyHTML,
		&msg.ReceivedAt,
		&msg.IsRead,
		&msg.IsStarred,
		&msg.HasAttachments,
		&msg.Priority,
		&msg.Labels,
		&msg.CorrelationID,
		&msg.CategoryID,
		&analysis,
		&msg.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, storageError("get incoming message", err)
	}

	if len(analysis) > 0 {
		if err := json.Unmarshal(analysis, &msg.Analysis); err != nil {
			return nil, storageError("decode analysis", err)
		}
	}

	return &msg, nil
}

// CountIncomingMessages returns how many messages were admitted for a user.
func CountIncomingMessages(ctx context.Context, pool *pgxpool.Pool, userID string) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM incoming_messages WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, storageError("count incoming messages", err)
	}
	return count, nil
}

// marshalJSON encodes v for a JSONB column, mapping an empty map to NULL.
func marshalJSON(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
