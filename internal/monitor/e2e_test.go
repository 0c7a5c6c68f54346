package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/mailpilot/internal/autoreply"
	"github.com/vdavid/mailpilot/internal/classify"
	"github.com/vdavid/mailpilot/internal/imap"
	"github.com/vdavid/mailpilot/internal/smtp"
	"github.com/vdavid/mailpilot/internal/testutil"
	"go.uber.org/zap/zaptest"
)

func TestPipelineAgainstLocalServers(t *testing.T) {
	imapServer := testutil.NewTestIMAPServer(t)
	smtpServer := testutil.NewTestSMTPServer(t)
	imapServer.AppendMessage(t, "INBOX", helpMessage())

	logger := zaptest.NewLogger(t)
	store := newFakeStore()
	store.setCategories(ownerID, "Support", "Marketing")
	capability := &fakeCapability{answer: "Support"}
	generator := &fakeGenerator{confidence: map[string]float64{"Help": 0.9}}
	publisher := &recordingPublisher{}

	deps := Dependencies{
		Store:      store,
		Dialer:     imap.NewDialer(imap.DialerOptions{Timeout: 5 * time.Second}),
		Classifier: classify.NewClassifier(capability, logger),
		Responder:  autoreply.NewResponder(generator, smtp.NewSender(smtp.SenderOptions{}), store, logger),
		Publisher:  publisher,
		Logger:     logger,
	}

	cfg := testMailbox("mailbox-1")
	cfg.Username = imapServer.Username()
	cfg.Password = imapServer.Password()
	cfg.IMAPHost = imapServer.Host()
	cfg.IMAPPort = imapServer.Port()
	cfg.SMTPHost = smtpServer.Host()
	cfg.SMTPPort = smtpServer.Port()

	w := NewWorker(cfg, deps, fastOptions())
	require.NoError(t, w.runCycle(context.Background()))
	require.NoError(t, w.runCycle(context.Background()))

	msg := store.incomingByCorrelation(ownerID, "<m-1>")
	require.NotNil(t, msg)
	require.NotNil(t, msg.CategoryID)
	assert.Equal(t, "cat-Support", *msg.CategoryID)
	assert.Equal(t, 2, store.incomingCount(), "the seeded message and the appended one")

	received := smtpServer.Messages()
	require.Len(t, received, 1, "one reply across two cycles")
	assert.Equal(t, []string{"customer@example.com"}, received[0].To)
	assert.Equal(t, "username", received[0].Username)
	assert.Contains(t, string(received[0].Data), "In-Reply-To: <m-1>")
	assert.Contains(t, string(received[0].Data), "Subject: Re: Help")

	sent := store.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "<m-1>", sent[0].InReplyTo)
}
