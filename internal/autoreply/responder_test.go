package autoreply

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/mailpilot/internal/agent"
	"github.com/vdavid/mailpilot/internal/models"
	"github.com/vdavid/mailpilot/internal/smtp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeGenerator struct {
	resp *agent.RespondResponse
	err  error
	reqs []agent.RespondRequest
}

func (f *fakeGenerator) Respond(_ context.Context, req agent.RespondRequest) (*agent.RespondResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeSender struct {
	err  error
	sent []*smtp.OutgoingMessage
}

func (f *fakeSender) Send(_ context.Context, _ *models.MailboxConfig, msg *smtp.OutgoingMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "<reply-1@example.com>", nil
}

type fakeRecorder struct {
	err      error
	recorded []*models.SentMessage
}

func (f *fakeRecorder) RecordSentMessage(_ context.Context, msg *models.SentMessage) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, msg)
	return nil
}

func testMailbox() *models.MailboxConfig {
	return &models.MailboxConfig{
		ID:                  "mailbox-1",
		UserID:              "user-1",
		EmailAddress:        "support@example.com",
		AutoReplyEnabled:    true,
		ConfidenceThreshold: 0.8,
	}
}

func testIncoming() *models.IncomingMessage {
	return &models.IncomingMessage{
		ID:            "incoming-1",
		UserID:        "user-1",
		MailboxID:     "mailbox-1",
		SenderAddress: "customer@example.com",
		Subject:       "Help",
		BodyText:      "my account is broken",
		CorrelationID: "<m-1>",
	}
}

func TestRespondConfidenceGate(t *testing.T) {
	tests := []struct {
		name        string
		confidence  float64
		scale       float64
		wantOutcome Outcome
		wantSent    int
	}{
		{name: "just below threshold", confidence: 0.79, wantOutcome: OutcomeBelowThreshold, wantSent: 0},
		{name: "exactly at threshold", confidence: 0.80, wantOutcome: OutcomeSent, wantSent: 1},
		{name: "ten point scale", confidence: 9, wantOutcome: OutcomeSent, wantSent: 1},
		{name: "ten point scale below", confidence: 7.9, wantOutcome: OutcomeBelowThreshold, wantSent: 0},
		{name: "explicit scale", confidence: 80, scale: 100, wantOutcome: OutcomeSent, wantSent: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator := &fakeGenerator{resp: &agent.RespondResponse{Body: "We are on it.", Confidence: tt.confidence, Scale: tt.scale}}
			sender := &fakeSender{}
			recorder := &fakeRecorder{}

			result := NewResponder(generator, sender, recorder, nil).Respond(context.Background(), testMailbox(), testIncoming())

			assert.Equal(t, tt.wantOutcome, result.Outcome)
			assert.NoError(t, result.Err)
			assert.Len(t, sender.sent, tt.wantSent)
			assert.Len(t, recorder.recorded, tt.wantSent)
		})
	}
}

func TestRespondSendsThreadedReply(t *testing.T) {
	generator := &fakeGenerator{resp: &agent.RespondResponse{Body: "We are on it.", Confidence: 0.9}}
	sender := &fakeSender{}
	recorder := &fakeRecorder{}

	result := NewResponder(generator, sender, recorder, nil).Respond(context.Background(), testMailbox(), testIncoming())
	require.Equal(t, OutcomeSent, result.Outcome)

	require.Len(t, sender.sent, 1)
	out := sender.sent[0]
	assert.Equal(t, "support@example.com", out.From)
	assert.Equal(t, []string{"customer@example.com"}, out.To)
	assert.Equal(t, "Re: Help", out.Subject)
	assert.Equal(t, "<m-1>", out.InReplyTo)

	require.Len(t, recorder.recorded, 1)
	sent := recorder.recorded[0]
	assert.Equal(t, models.SentStatusSent, sent.Status)
	assert.Equal(t, models.DeliveryStatusSuccess, sent.DeliveryStatus)
	assert.Equal(t, "<m-1>", sent.InReplyTo)
	assert.Equal(t, "<reply-1@example.com>", sent.MessageID)
	require.NotNil(t, sent.IncomingMessageID)
	assert.Equal(t, "incoming-1", *sent.IncomingMessageID)
	assert.Same(t, sent, result.Sent)

	require.Len(t, generator.reqs, 1)
	assert.Equal(t, "user-1", generator.reqs[0].UserID)
	assert.Equal(t, "customer@example.com", generator.reqs[0].Sender)
}

func TestRespondFailures(t *testing.T) {
	t.Run("generation failure", func(t *testing.T) {
		generator := &fakeGenerator{err: errors.New("agent down")}
		sender := &fakeSender{}

		result := NewResponder(generator, sender, &fakeRecorder{}, nil).Respond(context.Background(), testMailbox(), testIncoming())

		assert.Equal(t, OutcomeFailed, result.Outcome)
		assert.Error(t, result.Err)
		assert.Empty(t, sender.sent)
	})

	t.Run("send failure records nothing", func(t *testing.T) {
		generator := &fakeGenerator{resp: &agent.RespondResponse{Body: "b", Confidence: 0.95}}
		sendErr := &smtp.SendError{Mailbox: "support@example.com", Err: errors.New("relay denied")}
		recorder := &fakeRecorder{}

		result := NewResponder(generator, &fakeSender{err: sendErr}, recorder, nil).Respond(context.Background(), testMailbox(), testIncoming())

		assert.Equal(t, OutcomeFailed, result.Outcome)
		assert.ErrorIs(t, result.Err, sendErr)
		assert.Empty(t, recorder.recorded)
	})

	t.Run("missing sender address", func(t *testing.T) {
		generator := &fakeGenerator{resp: &agent.RespondResponse{Body: "b", Confidence: 0.95}}
		sender := &fakeSender{}
		incoming := testIncoming()
		incoming.SenderAddress = ""

		result := NewResponder(generator, sender, &fakeRecorder{}, nil).Respond(context.Background(), testMailbox(), incoming)

		assert.Equal(t, OutcomeFailed, result.Outcome)
		assert.Empty(t, sender.sent)
	})

	t.Run("record failure after send", func(t *testing.T) {
		generator := &fakeGenerator{resp: &agent.RespondResponse{Body: "b", Confidence: 0.95}}
		sender := &fakeSender{}

		result := NewResponder(generator, sender, &fakeRecorder{err: errors.New("db down")}, nil).Respond(context.Background(), testMailbox(), testIncoming())

		assert.Equal(t, OutcomeSent, result.Outcome)
		assert.Error(t, result.Err)
		assert.Len(t, sender.sent, 1)
	})
}

func TestRespondLogsBelowThresholdAsInfo(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	generator := &fakeGenerator{resp: &agent.RespondResponse{Body: "b", Confidence: 0.5}}

	result := NewResponder(generator, &fakeSender{}, &fakeRecorder{}, zap.New(core)).Respond(context.Background(), testMailbox(), testIncoming())
	require.Equal(t, OutcomeBelowThreshold, result.Outcome)

	entries := logs.FilterMessage("reply confidence below threshold, not sending").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "<m-1>", entries[0].ContextMap()["correlation_id"])
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestRespondLogsUnrecordedReplyAsWarn(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	generator := &fakeGenerator{resp: &agent.RespondResponse{Body: "b", Confidence: 0.95}}

	result := NewResponder(generator, &fakeSender{}, &fakeRecorder{err: errors.New("db down")}, zap.New(core)).Respond(context.Background(), testMailbox(), testIncoming())
	require.Equal(t, OutcomeSent, result.Outcome)

	entries := logs.FilterMessage("auto-reply sent but not recorded").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		score, scale, want float64
	}{
		{0.9, 0, 0.9},
		{1, 0, 1},
		{9, 0, 0.9},
		{10, 0, 1},
		{42, 0, 1},
		{-1, 0, 0},
		{4, 5, 0.8},
		{150, 100, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeConfidence(tt.score, tt.scale), 1e-9, "score %v scale %v", tt.score, tt.scale)
	}
}

func TestNormalizeThreshold(t *testing.T) {
	assert.InDelta(t, 0.8, NormalizeThreshold(0.8), 1e-9)
	assert.InDelta(t, 0.8, NormalizeThreshold(8), 1e-9)
	assert.InDelta(t, 0.0, NormalizeThreshold(-2), 1e-9)
}
