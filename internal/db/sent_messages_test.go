package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/mailpilot/internal/models"
	"github.com/vdavid/mailpilot/internal/testutil"
)

func TestSentMessages(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	userID := createTestUser(t, pool, "owner@example.com")
	mailbox := createTestMailbox(t, pool, userID, "support@example.com")

	incoming := newIncoming(userID, mailbox.ID, "<m-1@example.com>")
	incoming.ReceivedAt = time.Now().UTC()
	require.NoError(t, AdmitIncomingMessage(ctx, pool, incoming))

	t.Run("records an auto-reply linked to its incoming message", func(t *testing.T) {
		reply := &models.SentMessage{
			UserID:            userID,
			MailboxID:         mailbox.ID,
			IncomingMessageID: &incoming.ID,
			InReplyTo:         "<m-1@example.com>",
			MessageID:         "<reply-1@example.com>",
			Subject:           "Re: Help",
			SentAt:            time.Now().UTC(),
			DeliveryStatus:    models.DeliveryStatusSuccess,
			Recipients:        []string{"customer@example.com"},
			Content:           "We are on it.",
		}
		require.NoError(t, RecordSentMessage(ctx, pool, reply))
		assert.NotEmpty(t, reply.ID)
		assert.Equal(t, models.SentStatusSent, reply.Status)

		replies, err := ListSentMessagesForIncoming(ctx, pool, incoming.ID)
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.Equal(t, "<m-1@example.com>", replies[0].InReplyTo)
		assert.Equal(t, []string{"customer@example.com"}, replies[0].Recipients)
	})

	t.Run("sent folder admission is idempotent", func(t *testing.T) {
		newSent := func() *models.SentMessage {
			return &models.SentMessage{
				UserID:    userID,
				MailboxID: mailbox.ID,
				MessageID: "<outbound-1@example.com>",
				Subject:   "Hello",
				SentAt:    time.Now().UTC(),
			}
		}

		require.NoError(t, AdmitSentMessage(ctx, pool, newSent()))
		assert.ErrorIs(t, AdmitSentMessage(ctx, pool, newSent()), ErrAlreadyProcessed)
		assert.NoError(t, RecordSentMessage(ctx, pool, newSent()))
	})

	t.Run("no replies", func(t *testing.T) {
		other := newIncoming(userID, mailbox.ID, "<m-2@example.com>")
		other.ReceivedAt = time.Now().UTC()
		require.NoError(t, AdmitIncomingMessage(ctx, pool, other))

		replies, err := ListSentMessagesForIncoming(ctx, pool, other.ID)
		require.NoError(t, err)
		assert.Empty(t, replies)
	})
}
