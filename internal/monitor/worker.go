package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/vdavid/mailpilot/internal/imap"
	"github.com/vdavid/mailpilot/internal/metrics"
	"github.com/vdavid/mailpilot/internal/models"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateListing    State = "listing"
	StateProcessing State = "processing"
	StateSleeping   State = "sleeping"
	StateStopped    State = "stopped"
)

// Status is a point-in-time view of a worker.
type Status struct {
	MailboxID   string     `json:"mailbox_id"`
	State       State      `json:"state"`
	Running     bool       `json:"running"`
	Cycles      int        `json:"cycles"`
	LastError   string     `json:"last_error,omitempty"`
	LastCycleAt *time.Time `json:"last_cycle_at,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
}

// Worker polls one mailbox until its context is cancelled. A failed cycle
// never ends the worker; it only lengthens the next sleep.
type Worker struct {
	cfg    *models.MailboxConfig
	deps   Dependencies
	opts   Options
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	cycles      int
	lastErr     error
	lastCycleAt time.Time
	startedAt   time.Time
}

func NewWorker(cfg *models.MailboxConfig, deps Dependencies, opts Options) *Worker {
	deps = deps.withDefaults()
	return &Worker{
		cfg:    cfg,
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: deps.Logger.With(zap.String("mailbox_id", cfg.ID)),
		state:  StateIdle,
	}
}

// Run loops poll cycles until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.mu.Lock()
	w.startedAt = time.Now()
	w.mu.Unlock()

	w.logger.Info("mailbox worker started")
	defer func() {
		w.setState(StateStopped)
		w.logger.Info("mailbox worker stopped")
	}()

	for {
		err := w.runCycle(ctx)
		if ctx.Err() != nil {
			return
		}

		w.finishCycle(err)
		metrics.RecordPollCycle(err)

		wait := w.opts.PollInterval
		if err != nil {
			w.logger.Error("poll cycle failed", zap.Error(err), zap.Duration("backoff", w.opts.ErrorBackoff))
			wait = w.opts.ErrorBackoff
		}

		w.setState(StateSleeping)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// runCycle performs one connect, list and process pass over every role.
// Listing failures for one role do not stop the other role, but the cycle
// still counts as failed.
func (w *Worker) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in poll cycle", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic in poll cycle: %v", r)
		}
	}()

	w.setState(StateConnecting)
	session, err := w.deps.Dialer.Dial(ctx, w.cfg)
	if err != nil {
		w.updateConnectionStatus(ctx, models.ConnectionStatusError, nil)
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			w.logger.Debug("failed to close mailbox session", zap.Error(cerr))
		}
	}()

	var roleErrs []error
	for _, role := range models.Roles {
		if ctx.Err() != nil {
			return nil
		}

		err := w.pollRole(ctx, session, role)
		var fetchErr *imap.FetchError
		switch {
		case err == nil:
		case errors.Is(err, imap.ErrFolderNotFound):
			w.logger.Debug("no folder for role, skipping", zap.String("role", string(role)))
		case errors.As(err, &fetchErr):
			w.logger.Warn("failed to list messages", zap.String("role", string(role)), zap.Error(err))
			roleErrs = append(roleErrs, err)
		default:
			return err
		}
	}

	now := time.Now().UTC()
	w.updateConnectionStatus(ctx, models.ConnectionStatusConnected, &now)

	return errors.Join(roleErrs...)
}

func (w *Worker) pollRole(ctx context.Context, session imap.MailboxSession, role models.MailboxRole) error {
	w.setState(StateListing)

	folder, err := session.ResolveFolder(role, w.cfg.SentFolder)
	if err != nil {
		return err
	}

	uids, err := session.ListMessageIDs(folder, w.opts.SearchFilter, w.opts.BatchSize)
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return nil
	}

	p := &processor{worker: w, session: session, role: role, folder: folder}
	if role == models.RoleInbox {
		// Loaded before any admission so a storage failure here cannot leave
		// a freshly admitted message without a classification attempt.
		categories, err := w.deps.Store.LoadCategorySet(ctx, w.cfg.UserID)
		if err != nil {
			return err
		}
		p.categories = categories
	}

	w.setState(StateProcessing)
	for _, uid := range uids {
		if ctx.Err() != nil {
			return nil
		}
		if err := p.process(ctx, uid); err != nil {
			return err
		}
	}

	return nil
}

func (w *Worker) updateConnectionStatus(ctx context.Context, status string, lastSync *time.Time) {
	if ctx.Err() != nil {
		return
	}
	if err := w.deps.Store.UpdateConnectionStatus(ctx, w.cfg.ID, status, lastSync); err != nil {
		w.logger.Warn("failed to update connection status", zap.String("status", status), zap.Error(err))
	}
}

func (w *Worker) setState(state State) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

func (w *Worker) finishCycle(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cycles++
	w.lastErr = err
	w.lastCycleAt = time.Now().UTC()
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := Status{
		MailboxID: w.cfg.ID,
		State:     w.state,
		Running:   w.state != StateStopped,
		Cycles:    w.cycles,
		StartedAt: w.startedAt,
	}
	if w.lastErr != nil {
		status.LastError = w.lastErr.Error()
	}
	if !w.lastCycleAt.IsZero() {
		at := w.lastCycleAt
		status.LastCycleAt = &at
	}
	return status
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
