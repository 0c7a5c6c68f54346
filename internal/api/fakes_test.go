package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/vdavid/mailpilot/internal/auth"
	"github.com/vdavid/mailpilot/internal/db"
	"github.com/vdavid/mailpilot/internal/models"
	"github.com/vdavid/mailpilot/internal/monitor"
)

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]string
	mailboxes map[string]*models.MailboxConfig
	activity  map[string][]models.ActivityLog
	userErr   error
	lastLimit int
	lastOff   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[string]string{},
		mailboxes: map[string]*models.MailboxConfig{},
		activity:  map[string][]models.ActivityLog{},
	}
}

func (s *fakeStore) GetOrCreateUser(_ context.Context, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userErr != nil {
		return "", s.userErr
	}
	if id, ok := s.users[email]; ok {
		return id, nil
	}
	id := "user-" + email
	s.users[email] = id
	return id, nil
}

func (s *fakeStore) GetMailboxConfig(_ context.Context, mailboxID string) (*models.MailboxConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.mailboxes[mailboxID]
	if !ok {
		return nil, db.ErrMailboxNotFound
	}
	c := *cfg
	return &c, nil
}

func (s *fakeStore) ListActivity(_ context.Context, userID string, limit, offset int) ([]models.ActivityLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit, s.lastOff = limit, offset
	entries := s.activity[userID]
	if offset >= len(entries) {
		return nil, nil
	}
	end := min(offset+limit, len(entries))
	return entries[offset:end], nil
}

type fakeSupervisor struct {
	mu       sync.Mutex
	running  map[string]string
	startErr error
	stopErr  error
	bulkErr  error
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{running: map[string]string{}}
}

func (f *fakeSupervisor) Start(cfg *models.MailboxConfig) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return false, f.startErr
	}
	if _, ok := f.running[cfg.ID]; ok {
		return false, nil
	}
	f.running[cfg.ID] = cfg.UserID
	return true, nil
}

func (f *fakeSupervisor) Stop(mailboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, mailboxID)
	return f.stopErr
}

func (f *fakeSupervisor) Status(mailboxID string) (monitor.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.running[mailboxID]; !ok {
		return monitor.Status{MailboxID: mailboxID, State: monitor.StateStopped}, false
	}
	return monitor.Status{MailboxID: mailboxID, State: monitor.StateSleeping, Running: true, Cycles: 3}, true
}

func (f *fakeSupervisor) StartAll(_ context.Context, ownerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return 2, f.bulkErr
}

func (f *fakeSupervisor) StopAll(ownerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for id, owner := range f.running {
		if owner == ownerID {
			delete(f.running, id)
			count++
		}
	}
	return count, f.bulkErr
}

func (f *fakeSupervisor) isRunning(mailboxID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.running[mailboxID]
	return ok
}

var errBoom = errors.New("boom")

// authedRequest builds a request as RequireAuth would leave it.
func authedRequest(method, target, email string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(req.Context(), auth.UserEmailKey, email)
	return req.WithContext(ctx)
}
