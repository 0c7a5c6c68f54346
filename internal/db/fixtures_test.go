package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/mailpilot/internal/models"
)

func createTestUser(t *testing.T, pool *pgxpool.Pool, email string) string {
	t.Helper()
	userID, err := GetOrCreateUser(context.Background(), pool, email)
	require.NoError(t, err)
	return userID
}

func createTestMailbox(t *testing.T, pool *pgxpool.Pool, userID, address string) *models.MailboxConfig {
	t.Helper()
	cfg := &models.MailboxConfig{
		UserID:              userID,
		EmailAddress:        address,
		EncryptedPassword:   []byte("sealed"),
		IMAPHost:            "imap.example.com",
		IMAPPort:            993,
		SMTPHost:            "smtp.example.com",
		SMTPPort:            465,
		Enabled:             true,
		ConfidenceThreshold: models.DefaultConfidenceThreshold,
	}
	require.NoError(t, SaveMailboxConfig(context.Background(), pool, cfg))
	return cfg
}

func newIncoming(userID, mailboxID, correlationID string) *models.IncomingMessage {
	return &models.IncomingMessage{
		UserID:        userID,
		MailboxID:     mailboxID,
		SenderAddress: "customer@example.com",
		SenderName:    "Customer",
		Recipient:     "support@example.com",
		Subject:       "Help",
		BodyText:      "my account is broken",
		CorrelationID: correlationID,
	}
}
