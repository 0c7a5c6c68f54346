package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/vdavid/mailpilot/internal/autoreply"
	"github.com/vdavid/mailpilot/internal/classify"
	"github.com/vdavid/mailpilot/internal/db"
	"github.com/vdavid/mailpilot/internal/events"
	"github.com/vdavid/mailpilot/internal/imap"
	"github.com/vdavid/mailpilot/internal/mailparse"
	"github.com/vdavid/mailpilot/internal/metrics"
	"github.com/vdavid/mailpilot/internal/models"
	"go.uber.org/zap"
)

// processor handles the messages of one role within one cycle. It returns an
// error only when the cycle has to end; per-message problems are logged and
// the message is left for the next cycle.
type processor struct {
	worker     *Worker
	session    imap.MailboxSession
	role       models.MailboxRole
	folder     string
	categories []models.Category
}

func (p *processor) process(ctx context.Context, uid uint32) error {
	w := p.worker
	logger := w.logger.With(zap.String("role", string(p.role)), zap.Uint32("uid", uid))

	fetched, err := p.session.FetchMessage(uid)
	if err != nil {
		var fetchErr *imap.FetchError
		if errors.As(err, &fetchErr) {
			logger.Warn("failed to fetch message, skipping", zap.Error(err))
			metrics.RecordMessage(string(p.role), "fetch_failed")
			return nil
		}
		return err
	}

	normalized := mailparse.Normalize(fetched.Raw)
	if normalized.CorrelationID == "" {
		normalized.CorrelationID = mailparse.FallbackCorrelationID(w.cfg.ID, p.role, uid)
	}
	logger = logger.With(zap.String("correlation_id", normalized.CorrelationID))

	if p.role == models.RoleSent {
		return p.recordSent(ctx, logger, fetched, normalized)
	}
	return p.handleIncoming(ctx, logger, fetched, normalized)
}

func (p *processor) recordSent(ctx context.Context, logger *zap.Logger, fetched *imap.FetchedMessage, normalized models.NormalizedMessage) error {
	w := p.worker

	sent := &models.SentMessage{
		UserID:         w.cfg.UserID,
		MailboxID:      w.cfg.ID,
		MessageID:      normalized.CorrelationID,
		Subject:        normalized.Subject,
		SentAt:         messageTime(normalized, fetched),
		DeliveryStatus: models.DeliveryStatusSuccess,
		Recipients:     normalized.Recipients,
		Content:        normalized.Body,
		Status:         models.SentStatusSent,
	}

	err := w.deps.Store.AdmitSentMessage(ctx, sent)
	if errors.Is(err, db.ErrAlreadyProcessed) {
		metrics.RecordMessage(string(p.role), "duplicate")
		return nil
	}
	if err != nil {
		metrics.RecordMessage(string(p.role), "storage_failed")
		return fmt.Errorf("failed to record sent message %s: %w", normalized.CorrelationID, err)
	}

	metrics.RecordMessage(string(p.role), "admitted")
	logger.Debug("sent message recorded")
	return nil
}

func (p *processor) handleIncoming(ctx context.Context, logger *zap.Logger, fetched *imap.FetchedMessage, normalized models.NormalizedMessage) error {
	w := p.worker

	msg := &models.IncomingMessage{
		UserID:         w.cfg.UserID,
		MailboxID:      w.cfg.ID,
		SenderAddress:  normalized.SenderAddress,
		SenderName:     normalized.SenderName,
		Recipient:      normalized.Recipient,
		Subject:        normalized.Subject,
		BodyText:       normalized.Body,
		BodyHTML:       normalized.HTMLBody,
		ReceivedAt:     messageTime(normalized, fetched),
		IsRead:         fetched.HasFlag(goimap.SeenFlag),
		IsStarred:      fetched.HasFlag(goimap.FlaggedFlag),
		HasAttachments: normalized.HasAttachments,
		Priority:       models.PriorityNormal,
		Labels:         []string{p.folder},
		CorrelationID:  normalized.CorrelationID,
	}

	err := w.deps.Store.AdmitIncomingMessage(ctx, msg)
	if errors.Is(err, db.ErrAlreadyProcessed) {
		metrics.RecordMessage(string(p.role), "duplicate")
		logger.Debug("message already processed")
		return nil
	}
	if err != nil {
		metrics.RecordMessage(string(p.role), "storage_failed")
		return fmt.Errorf("failed to admit message %s: %w", normalized.CorrelationID, err)
	}
	metrics.RecordMessage(string(p.role), "admitted")
	logger.Info("message admitted", zap.String("subject", msg.Subject))

	classification := w.deps.Classifier.Classify(ctx, classify.Input{
		Subject: msg.Subject,
		Body:    msg.BodyText,
		Sender:  normalized.Sender,
		OwnerID: w.cfg.UserID,
	}, p.categories)

	categoryName := ""
	if classification.Category != nil {
		categoryName = classification.Category.Name
		analysis := map[string]any{
			"category":               categoryName,
			"classification_outcome": string(classification.Outcome),
		}
		if classification.Returned != categoryName {
			analysis["classifier_answer"] = classification.Returned
		}
		if err := w.deps.Store.StoreCategory(ctx, msg.ID, &classification.Category.ID, analysis); err != nil {
			return fmt.Errorf("failed to store category for %s: %w", msg.CorrelationID, err)
		}
		msg.CategoryID = &classification.Category.ID
		msg.Analysis = analysis
	}

	p.recordActivity(ctx, logger, &models.ActivityLog{
		Type:     models.ActivityEmailReceived,
		Action:   string(classification.Outcome),
		Category: categoryName,
	}, msg)

	received := events.New(events.TypeEmailReceived, msg.UserID, w.cfg.ID, msg.CorrelationID)
	received.Subject = msg.Subject
	received.Category = categoryName
	received.Outcome = string(classification.Outcome)
	p.publish(ctx, logger, received)

	if !w.cfg.AutoReplyEnabled || classification.Category == nil || w.deps.Responder == nil {
		return nil
	}

	p.autoReply(ctx, logger, msg, categoryName)
	return nil
}

func (p *processor) autoReply(ctx context.Context, logger *zap.Logger, msg *models.IncomingMessage, categoryName string) {
	w := p.worker
	result := w.deps.Responder.Respond(ctx, w.cfg, msg)

	confidence := result.Confidence
	elapsed := result.Elapsed.Milliseconds()
	entry := &models.ActivityLog{
		Action:         string(result.Outcome),
		Category:       categoryName,
		Confidence:     &confidence,
		ResponseTimeMS: &elapsed,
	}

	switch result.Outcome {
	case autoreply.OutcomeSent:
		entry.Type = models.ActivityAutoReplySent
		entry.Metadata = map[string]any{"message_id": result.Sent.MessageID, "reply_subject": result.Subject}
	case autoreply.OutcomeBelowThreshold:
		entry.Type = models.ActivityAutoReplySkipped
		entry.Metadata = map[string]any{"threshold": w.cfg.ConfidenceThreshold}
	default:
		entry.Type = models.ActivityAutoReplyFailed
	}
	if result.Err != nil {
		if entry.Metadata == nil {
			entry.Metadata = map[string]any{}
		}
		entry.Metadata["error"] = result.Err.Error()
	}
	p.recordActivity(ctx, logger, entry, msg)

	if result.Outcome == autoreply.OutcomeSent {
		replied := events.New(events.TypeEmailAutoReplied, msg.UserID, w.cfg.ID, msg.CorrelationID)
		replied.Subject = result.Subject
		replied.Category = categoryName
		replied.Outcome = string(result.Outcome)
		p.publish(ctx, logger, replied)
	}
}

// recordActivity stores an audit row. Losing one is logged but does not
// fail the cycle.
func (p *processor) recordActivity(ctx context.Context, logger *zap.Logger, entry *models.ActivityLog, msg *models.IncomingMessage) {
	entry.UserID = msg.UserID
	entry.MailboxID = p.worker.cfg.ID
	entry.CorrelationID = msg.CorrelationID
	entry.Subject = msg.Subject

	if err := p.worker.deps.Store.RecordActivity(ctx, entry); err != nil {
		logger.Warn("failed to record activity", zap.String("type", entry.Type), zap.Error(err))
	}
}

func (p *processor) publish(ctx context.Context, logger *zap.Logger, event events.Event) {
	if err := p.worker.deps.Publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish event", zap.String("type", event.Type), zap.Error(err))
	}
}

// messageTime prefers the Date header, then the server's internal date.
func messageTime(normalized models.NormalizedMessage, fetched *imap.FetchedMessage) time.Time {
	if normalized.Date != nil && !normalized.Date.IsZero() {
		return normalized.Date.UTC()
	}
	if !fetched.InternalDate.IsZero() {
		return fetched.InternalDate.UTC()
	}
	return time.Now().UTC()
}
