package db

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/mailpilot/internal/models"
)

// RecordActivity appends an audit row.
func RecordActivity(ctx context.Context, pool *pgxpool.Pool, entry *models.ActivityLog) error {
	metadata, err := marshalJSON(entry.Metadata)
	if err != nil {
		return storageError("encode activity metadata", err)
	}

	var mailboxID *string
	if entry.MailboxID != "" {
		mailboxID = &entry.MailboxID
	}

	err = pool.QueryRow(ctx, `
		INSERT INTO activity_logs (
			user_id,
			mailbox_id,
			type,
			correlation_id,
			subject,
			confidence,
			action,
			category,
			response_time_ms,
			metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`,
		entry.UserID,
		mailboxID,
		entry.Type,
		entry.CorrelationID,
		entry.Subject,
		entry.Confidence,
		entry.Action,
		entry.Category,
		entry.ResponseTimeMS,
		metadata,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return storageError("record activity", err)
	}

	return nil
}

// ListActivity returns a page of a user's activity rows, newest first.
func ListActivity(ctx context.Context, pool *pgxpool.Pool, userID string, limit, offset int) ([]models.ActivityLog, error) {
	rows, err := pool.Query(ctx, `
		SELECT
			id,
			user_id,
			COALESCE(mailbox_id::text, ''),
			type,
			correlation_id,
			subject,
			confidence,
			action,
			category,
			response_time_ms,
			metadata,
			created_at
		FROM activity_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, storageError("list activity", err)
	}
	defer rows.Close()

	var entries []models.ActivityLog
	for rows.Next() {
		var e models.ActivityLog
		var metadata []byte
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.MailboxID,
			&e.Type,
			&e.CorrelationID,
			&e.Subject,
			&e.Confidence,
			&e.Action,
			&e.Category,
			&e.ResponseTimeMS,
			&metadata,
			&e.CreatedAt,
		); err != nil {
			return nil, storageError("list activity", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, storageError("decode activity metadata", err)
			}
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("list activity", err)
	}

	return entries, nil
}
