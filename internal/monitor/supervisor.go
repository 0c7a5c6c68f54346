package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vdavid/mailpilot/internal/metrics"
	"github.com/vdavid/mailpilot/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrStopTimeout is returned by Stop when a worker ignores cancellation
	// for longer than the grace period.
	ErrStopTimeout = errors.New("worker did not stop within the grace period")

	ErrMailboxDisabled  = errors.New("mailbox monitoring is disabled")
	ErrSupervisorClosed = errors.New("supervisor is shut down")
)

type handle struct {
	worker *Worker
	userID string
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns every running worker, at most one per mailbox id. All
// methods are safe for concurrent use.
type Supervisor struct {
	deps   Dependencies
	opts   Options
	logger *zap.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
}

func NewSupervisor(deps Dependencies, opts Options) *Supervisor {
	deps = deps.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		deps:       deps,
		opts:       opts.withDefaults(),
		logger:     deps.Logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		handles:    make(map[string]*handle),
	}
}

// Start launches a worker for cfg unless one is already running. It reports
// whether a new worker was started.
func (s *Supervisor) Start(cfg *models.MailboxConfig) (bool, error) {
	if cfg == nil || cfg.ID == "" {
		return false, fmt.Errorf("mailbox config without id")
	}
	if !cfg.Enabled {
		return false, ErrMailboxDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrSupervisorClosed
	}
	if _, ok := s.handles[cfg.ID]; ok {
		return false, nil
	}

	workerCfg, err := s.unseal(cfg)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	h := &handle{
		worker: NewWorker(workerCfg, s.deps, s.opts),
		userID: cfg.UserID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.handles[cfg.ID] = h
	metrics.ActiveWorkers.Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(h.done)
		defer s.release(cfg.ID, h)
		h.worker.Run(ctx)
	}()

	s.logger.Info("monitoring started", zap.String("mailbox_id", cfg.ID))
	return true, nil
}

// StartByID loads the mailbox and starts it.
func (s *Supervisor) StartByID(ctx context.Context, mailboxID string) (bool, error) {
	cfg, err := s.deps.Store.GetMailboxConfig(ctx, mailboxID)
	if err != nil {
		return false, err
	}
	return s.Start(cfg)
}

// Stop cancels the mailbox's worker and waits up to the stop timeout for it
// to exit. Stopping a mailbox that is not running is a no-op.
func (s *Supervisor) Stop(mailboxID string) error {
	s.mu.Lock()
	h, ok := s.handles[mailboxID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	h.cancel()

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		s.logger.Info("monitoring stopped", zap.String("mailbox_id", mailboxID))
		return nil
	case <-timer.C:
		// The worker is cancelled and exits at its next check; forget it now
		// so the mailbox can be started again.
		s.forget(mailboxID, h)
		s.logger.Warn("worker did not stop in time",
			zap.String("mailbox_id", mailboxID),
			zap.Duration("timeout", s.opts.StopTimeout),
			zap.String("state", string(h.worker.State())),
		)
		return fmt.Errorf("%w: mailbox %s", ErrStopTimeout, mailboxID)
	}
}

func (s *Supervisor) IsMonitoring(mailboxID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.handles[mailboxID]
	return ok
}

// Status returns the worker status, or false when the mailbox is not monitored.
func (s *Supervisor) Status(mailboxID string) (Status, bool) {
	s.mu.Lock()
	h, ok := s.handles[mailboxID]
	s.mu.Unlock()
	if !ok {
		return Status{MailboxID: mailboxID, State: StateStopped}, false
	}
	return h.worker.Status(), true
}

// StartAll starts every enabled mailbox of the owner. One failing mailbox
// does not prevent the others from starting. The count includes mailboxes
// that were already running.
func (s *Supervisor) StartAll(ctx context.Context, ownerID string) (int, error) {
	configs, err := s.deps.Store.LoadEnabledMailboxConfigs(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return s.startConfigs(configs)
}

// StartEnabled starts every enabled mailbox of every user.
func (s *Supervisor) StartEnabled(ctx context.Context) (int, error) {
	configs, err := s.deps.Store.LoadAllEnabledMailboxConfigs(ctx)
	if err != nil {
		return 0, err
	}
	return s.startConfigs(configs)
}

func (s *Supervisor) startConfigs(configs []*models.MailboxConfig) (int, error) {
	var errs []error
	count := 0
	for _, cfg := range configs {
		if _, err := s.Start(cfg); err != nil {
			s.logger.Warn("failed to start monitoring", zap.String("mailbox_id", cfg.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("mailbox %s: %w", cfg.ID, err))
			continue
		}
		count++
	}
	return count, errors.Join(errs...)
}

// StopAll stops every running worker of the owner and reports how many
// stopped cleanly.
func (s *Supervisor) StopAll(ownerID string) (int, error) {
	s.mu.Lock()
	var ids []string
	for id, h := range s.handles {
		if h.userID == ownerID {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	var errs []error
	count := 0
	for _, id := range ids {
		if err := s.Stop(id); err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}
	return count, errors.Join(errs...)
}

// Shutdown cancels every worker and waits for them to exit or for ctx to end.
// No worker can be started afterwards.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.baseCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all mailbox workers stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out with workers still running", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// unseal returns a copy of cfg with the password decrypted.
func (s *Supervisor) unseal(cfg *models.MailboxConfig) (*models.MailboxConfig, error) {
	c := *cfg
	if c.Password != "" || len(c.EncryptedPassword) == 0 {
		return &c, nil
	}
	if s.deps.Credentials == nil {
		return nil, fmt.Errorf("no credential decrypter for mailbox %s", cfg.ID)
	}

	password, err := s.deps.Credentials.Decrypt(c.EncryptedPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential for mailbox %s: %w", cfg.ID, err)
	}
	c.Password = password
	c.EncryptedPassword = nil
	return &c, nil
}

// release runs when a worker goroutine exits.
func (s *Supervisor) release(mailboxID string, h *handle) {
	s.forget(mailboxID, h)
	metrics.ActiveWorkers.Dec()
}

func (s *Supervisor) forget(mailboxID string, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handles[mailboxID] == h {
		delete(s.handles, mailboxID)
	}
}
