// Package monitor runs one polling worker per mailbox and supervises them.
package monitor

import (
	"context"
	"time"

	"github.com/vdavid/mailpilot/internal/autoreply"
	"github.com/vdavid/mailpilot/internal/classify"
	"github.com/vdavid/mailpilot/internal/events"
	"github.com/vdavid/mailpilot/internal/imap"
	"github.com/vdavid/mailpilot/internal/models"
	"go.uber.org/zap"
)

// Store is the persistence the pipeline needs. Admission calls return
// db.ErrAlreadyProcessed for a correlation id that was stored before.
type Store interface {
	GetMailboxConfig(ctx context.Context, mailboxID string) (*models.MailboxConfig, error)
	LoadEnabledMailboxConfigs(ctx context.Context, userID string) ([]*models.MailboxConfig, error)
	LoadAllEnabledMailboxConfigs(ctx context.Context) ([]*models.MailboxConfig, error)
	UpdateConnectionStatus(ctx context.Context, mailboxID, status string, lastSync *time.Time) error
	LoadCategorySet(ctx context.Context, userID string) ([]models.Category, error)
	AdmitIncomingMessage(ctx context.Context, msg *models.IncomingMessage) error
	StoreCategory(ctx context.Context, messageID string, categoryID *string, analysis map[string]any) error
	AdmitSentMessage(ctx context.Context, msg *models.SentMessage) error
	RecordActivity(ctx context.Context, entry *models.ActivityLog) error
}

type Classifier interface {
	Classify(ctx context.Context, in classify.Input, categories []models.Category) classify.Result
}

type Responder interface {
	Respond(ctx context.Context, cfg *models.MailboxConfig, incoming *models.IncomingMessage) autoreply.Result
}

// Decrypter opens the stored mailbox credential.
type Decrypter interface {
	Decrypt(ciphertext []byte) (string, error)
}

type Dependencies struct {
	Store       Store
	Dialer      imap.MailboxDialer
	Classifier  Classifier
	Responder   Responder
	Publisher   events.Publisher
	Credentials Decrypter
	Logger      *zap.Logger
}

type Options struct {
	PollInterval time.Duration
	ErrorBackoff time.Duration
	BatchSize    int
	SearchFilter imap.SearchFilter
	StopTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 60 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.SearchFilter == "" {
		o.SearchFilter = imap.SearchAll
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	return o
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	return d
}
