package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/mailpilot/internal/models"
)

// Store binds the package functions to one pool so they can be passed around
// as a value.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) GetMailboxConfig(ctx context.Context, mailboxID string) (*models.MailboxConfig, error) {
	return GetMailboxConfig(ctx, s.pool, mailboxID)
}

func (s *Store) LoadEnabledMailboxConfigs(ctx context.Context, userID string) ([]*models.MailboxConfig, error) {
	return LoadEnabledMailboxConfigs(ctx, s.pool, userID)
}

func (s *Store) LoadAllEnabledMailboxConfigs(ctx context.Context) ([]*models.MailboxConfig, error) {
	return LoadAllEnabledMailboxConfigs(ctx, s.pool)
}

func (s *Store) UpdateConnectionStatus(ctx context.Context, mailboxID, status string, lastSync *time.Time) error {
	return UpdateConnectionStatus(ctx, s.pool, mailboxID, status, lastSync)
}

func (s *Store) LoadCategorySet(ctx context.Context, userID string) ([]models.Category, error) {
	return LoadCategorySet(ctx, s.pool, userID)
}

func (s *Store) AdmitIncomingMessage(ctx context.Context, msg *models.IncomingMessage) error {
	return AdmitIncomingMessage(ctx, s.pool, msg)
}

func (s *Store) StoreCategory(ctx context.Context, messageID string, categoryID *string, analysis map[string]any) error {
	return StoreCategory(ctx, s.pool, messageID, categoryID, analysis)
}

func (s *Store) AdmitSentMessage(ctx context.Context, msg *models.SentMessage) error {
	return AdmitSentMessage(ctx, s.pool, msg)
}

func (s *Store) RecordSentMessage(ctx context.Context, msg *models.SentMessage) error {
	return RecordSentMessage(ctx, s.pool, msg)
}

func (s *Store) RecordActivity(ctx context.Context, entry *models.ActivityLog) error {
	return RecordActivity(ctx, s.pool, entry)
}

func (s *Store) ListActivity(ctx context.Context, userID string, limit, offset int) ([]models.ActivityLog, error) {
	return ListActivity(ctx, s.pool, userID, limit, offset)
}

func (s *Store) GetOrCreateUser(ctx context.Context, email string) (string, error) {
	return GetOrCreateUser(ctx, s.pool, email)
}
