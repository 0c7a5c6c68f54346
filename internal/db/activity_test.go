package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/mailpilot/internal/models"
	"github.com/vdavid/mailpilot/internal/testutil"
)

func TestActivity(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	userID := createTestUser(t, pool, "owner@example.com")
	mailbox := createTestMailbox(t, pool, userID, "support@example.com")

	confidence := 0.92
	elapsed := int64(120)
	sent := &models.ActivityLog{
		UserID:         userID,
		MailboxID:      mailbox.ID,
		Type:           models.ActivityAutoReplySent,
		CorrelationID:  "<m-1@example.com>",
		Subject:        "Help",
		Confidence:     &confidence,
		Action:         "sent",
		Category:       "Support",
		ResponseTimeMS: &elapsed,
		Metadata:       map[string]any{"message_id": "<reply-1@example.com>"},
	}
	require.NoError(t, RecordActivity(ctx, pool, sent))
	assert.NotEmpty(t, sent.ID)

	received := &models.ActivityLog{
		UserID: userID,
		Type:   models.ActivityEmailReceived,
	}
	require.NoError(t, RecordActivity(ctx, pool, received))

	entries, err := ListActivity(ctx, pool, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byType := map[string]models.ActivityLog{}
	for _, e := range entries {
		byType[e.Type] = e
	}

	got := byType[models.ActivityAutoReplySent]
	assert.Equal(t, mailbox.ID, got.MailboxID)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.92, *got.Confidence, 1e-9)
	require.NotNil(t, got.ResponseTimeMS)
	assert.Equal(t, int64(120), *got.ResponseTimeMS)
	assert.Equal(t, "<reply-1@example.com>", got.Metadata["message_id"])

	bare := byType[models.ActivityEmailReceived]
	assert.Empty(t, bare.MailboxID)
	assert.Nil(t, bare.Confidence)
	assert.Nil(t, bare.Metadata)

	first, err := ListActivity(ctx, pool, userID, 1, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := ListActivity(ctx, pool, userID, 1, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)

	past, err := ListActivity(ctx, pool, userID, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, past)
}
