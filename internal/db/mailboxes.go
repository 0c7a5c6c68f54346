package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/mailpilot/internal/models"
)

const mailboxColumns = `
	id,
	user_id,
	email_address,
	username,
	encrypted_password,
	imap_host,
	imap_port,
	smtp_host,
	smtp_port,
	sent_folder,
	enabled,
	auto_reply_enabled,
	confidence_threshold,
	connection_status,
	last_sync_at,
	created_at,
	updated_at`

func scanMailbox(row pgx.Row) (*models.MailboxConfig, error) {
	var m models.MailboxConfig
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.EmailAddress,
		&m.Username,
		&m.EncryptedPassword,
		&m.IMAPHost,
		&m.IMAPPort,
		&m.SMTPHost,
		&m.SMTPPort,
		&m.SentFolder,
		&m.Enabled,
		&m.AutoReplyEnabled,
		&m.ConfidenceThreshold,
		&m.ConnectionStatus,
		&m.LastSyncAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveMailboxConfig inserts a mailbox or updates the one with the same
// (user, address). The id and timestamps are written back into cfg.
func SaveMailboxConfig(ctx context.Context, pool *pgxpool.Pool, cfg *models.MailboxConfig) error {
	status := cfg.ConnectionStatus
	if status == "" {
		status = models.ConnectionStatusDisconnected
	}

	err := pool.QueryRow(ctx, `
		INSERT INTO mailbox_configs (
			user_id,
			email_address,
			username,
			encrypted_password,
			imap_host,
			imap_port,
			smtp_host,
			smtp_port,
			sent_folder,
			enabled,
			auto_reply_enabled,
			confidence_threshold,
			connection_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, email_address) DO UPDATE SET
			username = EXCLUDED.username,
			encrypted_password = EXCLUDED.encrypted_password,
			imap_host = EXCLUDED.imap_host,
			imap_port = EXCLUDED.imap_port,
			smtp_host = EXCLUDED.smtp_host,
			smtp_port = EXCLUDED.smtp_port,
			sent_folder = EXCLUDED.sent_folder,
			enabled = EXCLUDED.enabled,
			auto_reply_enabled = EXCLUDED.auto_reply_enabled,
			confidence_threshold = EXCLUDED.confidence_threshold,
			updated_at = now()
		RETURNING id, connection_status, created_at, updated_at
	`,
		cfg.UserID,
		cfg.EmailAddress,
		cfg.Username,
		cfg.EncryptedPassword,
		cfg.IMAPHost,
		cfg.IMAPPort,
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SentFolder,
		cfg.Enabled,
		cfg.AutoReplyEnabled,
		cfg.ConfidenceThreshold,
		status,
	).Scan(&cfg.ID, &cfg.ConnectionStatus, &cfg.CreatedAt, &cfg.UpdatedAt)

	if err != nil {
		return storageError("save mailbox config", err)
	}

	return nil
}

// GetMailboxConfig returns one mailbox with its credential still encrypted.
// An id that is not a UUID cannot exist and is reported as not found.
func GetMailboxConfig(ctx context.Context, pool *pgxpool.Pool, mailboxID string) (*models.MailboxConfig, error) {
	if _, err := uuid.Parse(mailboxID); err != nil {
		return nil, ErrMailboxNotFound
	}
	m, err := scanMailbox(pool.QueryRow(ctx, `SELECT `+mailboxColumns+` FROM mailbox_configs WHERE id = $1`, mailboxID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMailboxNotFound
	}
	if err != nil {
		return nil, storageError("get mailbox config", err)
	}
	return m, nil
}

// ListMailboxConfigs returns every mailbox of a user, oldest first.
func ListMailboxConfigs(ctx context.Context, pool *pgxpool.Pool, userID string) ([]*models.MailboxConfig, error) {
	return queryMailboxes(ctx, pool, "list mailbox configs", `
		SELECT `+mailboxColumns+`
		FROM mailbox_configs
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
}

// LoadEnabledMailboxConfigs returns the user's mailboxes that should be monitored.
func LoadEnabledMailboxConfigs(ctx context.Context, pool *pgxpool.Pool, userID string) ([]*models.MailboxConfig, error) {
	return queryMailboxes(ctx, pool, "load enabled mailbox configs", `
		SELECT `+mailboxColumns+`
		FROM mailbox_configs
		WHERE user_id = $1 AND enabled
		ORDER BY created_at, id
	`, userID)
}

// LoadAllEnabledMailboxConfigs returns enabled mailboxes across all users.
func LoadAllEnabledMailboxConfigs(ctx context.Context, pool *pgxpool.Pool) ([]*models.MailboxConfig, error) {
	return queryMailboxes(ctx, pool, "load all enabled mailbox configs", `
		SELECT `+mailboxColumns+`
		FROM mailbox_configs
		WHERE enabled
		ORDER BY created_at, id
	`)
}

func queryMailboxes(ctx context.Context, pool *pgxpool.Pool, op, query string, args ...any) ([]*models.MailboxConfig, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError(op, err)
	}
	defer rows.Close()

	var mailboxes []*models.MailboxConfig
	for rows.Next() {
		m, err := scanMailbox(rows)
		if err != nil {
			return nil, storageError(op, err)
		}
		mailboxes = append(mailboxes, m)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError(op, err)
	}

	return mailboxes, nil
}

// UpdateConnectionStatus records the outcome of the last connection attempt.
// A nil lastSync leaves the stored timestamp untouched.
func UpdateConnectionStatus(ctx context.Context, pool *pgxpool.Pool, mailboxID, status string, lastSync *time.Time) error {
	tag, err := pool.Exec(ctx, `
		UPDATE mailbox_configs
		SET connection_status = $2,
			last_sync_at = COALESCE($3, last_sync_at),
			updated_at = now()
		WHERE id = $1
	`, mailboxID, status, lastSync)

	if err != nil {
		return storageError("update connection status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMailboxNotFound
	}

	return nil
}
