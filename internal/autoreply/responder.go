// Package autoreply drafts a reply through the agent and sends it when the
// agent is confident enough.
package autoreply

import (
	"context"
	"fmt"
	"time"

	"github.com/vdavid/mailpilot/internal/agent"
	"github.com/vdavid/mailpilot/internal/classify"
	"github.com/vdavid/mailpilot/internal/metrics"
	"github.com/vdavid/mailpilot/internal/models"
	"github.com/vdavid/mailpilot/internal/smtp"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeSent           Outcome = "sent"
	OutcomeBelowThreshold Outcome = "below_threshold"
	OutcomeFailed         Outcome = "failed"
)

// Generator is the external reply-generation service.
type Generator interface {
	Respond(ctx context.Context, req agent.RespondRequest) (*agent.RespondResponse, error)
}

// MailSender submits a composed message for a mailbox.
type MailSender interface {
	Send(ctx context.Context, cfg *models.MailboxConfig, msg *smtp.OutgoingMessage) (string, error)
}

// SentRecorder persists a transmitted reply.
type SentRecorder interface {
	RecordSentMessage(ctx context.Context, msg *models.SentMessage) error
}

// Result describes what happened to one message. Err is set for
// OutcomeFailed, and for OutcomeSent when the reply went out but could not
// be recorded.
type Result struct {
	Outcome    Outcome
	Confidence float64
	Subject    string
	Sent       *models.SentMessage
	Elapsed    time.Duration
	Err        error
}

type Responder struct {
	generator Generator
	sender    MailSender
	recorder  SentRecorder
	logger    *zap.Logger
	now       func() time.Time
}

func NewResponder(generator Generator, sender MailSender, recorder SentRecorder, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{
		generator: generator,
		sender:    sender,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// Respond runs the decision for an admitted, classified message. A failure
// never undoes what was already stored for the incoming message.
func (r *Responder) Respond(ctx context.Context, cfg *models.MailboxConfig, incoming *models.IncomingMessage) Result {
	start := r.now()
	result := r.respond(ctx, cfg, incoming)
	result.Elapsed = r.now().Sub(start)
	metrics.RecordAutoReply(string(result.Outcome))
	return result
}

func (r *Responder) respond(ctx context.Context, cfg *models.MailboxConfig, incoming *models.IncomingMessage) Result {
	logger := r.logger.With(
		zap.String("mailbox_id", cfg.ID),
		zap.String("correlation_id", incoming.CorrelationID),
	)

	draft, err := r.generator.Respond(ctx, agent.RespondRequest{
		UserID:  incoming.UserID,
		Sender:  incoming.SenderAddress,
		Subject: incoming.Subject,
		Body:    classify.Truncate(incoming.BodyText, classify.MaxBodyRunes),
	})
	if err != nil {
		logger.Warn("reply generation failed", zap.Error(err))
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("failed to generate reply: %w", err)}
	}

	confidence := NormalizeConfidence(draft.Confidence, draft.Scale)
	threshold := NormalizeThreshold(cfg.ConfidenceThreshold)
	subject := smtp.ReplySubject(incoming.Subject, draft.Subject)

	if confidence < threshold {
		logger.Info("reply confidence below threshold, not sending",
			zap.Float64("confidence", confidence),
			zap.Float64("threshold", threshold),
		)
		return Result{Outcome: OutcomeBelowThreshold, Confidence: confidence, Subject: subject}
	}

	if incoming.SenderAddress == "" {
		logger.Warn("incoming message has no sender address, cannot reply")
		return Result{Outcome: OutcomeFailed, Confidence: confidence, Subject: subject, Err: fmt.Errorf("no sender address to reply to")}
	}

	out := &smtp.OutgoingMessage{
		From:      cfg.EmailAddress,
		To:        []string{incoming.SenderAddress},
		Subject:   subject,
		Body:      draft.Body,
		InReplyTo: incoming.CorrelationID,
	}

	messageID, err := r.sender.Send(ctx, cfg, out)
	if err != nil {
		logger.Warn("failed to send auto-reply", zap.Error(err))
		return Result{Outcome: OutcomeFailed, Confidence: confidence, Subject: subject, Err: err}
	}

	incomingID := incoming.ID
	sent := &models.SentMessage{
		UserID:            incoming.UserID,
		MailboxID:         cfg.ID,
		IncomingMessageID: &incomingID,
		InReplyTo:         incoming.CorrelationID,
		MessageID:         messageID,
		Subject:           subject,
		SentAt:            r.now().UTC(),
		DeliveryStatus:    models.DeliveryStatusSuccess,
		Recipients:        out.To,
		Content:           draft.Body,
		Status:            models.SentStatusSent,
	}

	result := Result{Outcome: OutcomeSent, Confidence: confidence, Subject: subject, Sent: sent}
	if err := r.recorder.RecordSentMessage(ctx, sent); err != nil {
		logger.Warn("auto-reply sent but not recorded", zap.String("message_id", messageID), zap.Error(err))
		result.Err = err
		return result
	}

	logger.Info("auto-reply sent",
		zap.String("message_id", messageID),
		zap.Float64("confidence", confidence),
	)
	return result
}

// NormalizeConfidence maps a generator score onto [0,1]. An explicit scale
// divides the score; without one, scores above 1 are read on the 0-10 scale.
func NormalizeConfidence(score, scale float64) float64 {
	switch {
	case scale > 0:
		score /= scale
	case score > 1:
		score /= 10
	}
	return clamp(score)
}

// NormalizeThreshold reads a threshold above 1 on the 0-10 scale.
func NormalizeThreshold(threshold float64) float64 {
	if threshold > 1 {
		threshold /= 10
	}
	return clamp(threshold)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
