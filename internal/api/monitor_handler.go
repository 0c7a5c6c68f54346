package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vdavid/mailpilot/internal/db"
	"github.com/vdavid/mailpilot/internal/models"
	"github.com/vdavid/mailpilot/internal/monitor"
	"go.uber.org/zap"
)

// Supervisor is the part of monitor.Supervisor the control surface drives.
type Supervisor interface {
	Start(cfg *models.MailboxConfig) (bool, error)
	Stop(mailboxID string) error
	Status(mailboxID string) (monitor.Status, bool)
	StartAll(ctx context.Context, ownerID string) (int, error)
	StopAll(ownerID string) (int, error)
}

type MailboxStore interface {
	UserResolver
	GetMailboxConfig(ctx context.Context, mailboxID string) (*models.MailboxConfig, error)
}

// MonitorStatusResponse combines the live worker view with the persisted
// connection state.
type MonitorStatusResponse struct {
	monitor.Status
	Monitoring       bool       `json:"monitoring"`
	ConnectionStatus string     `json:"connection_status"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
}

type StartResponse struct {
	MailboxID string `json:"mailbox_id"`
	Started   bool   `json:"started"`
}

type StopResponse struct {
	MailboxID string `json:"mailbox_id"`
	Stopped   bool   `json:"stopped"`
	Error     string `json:"error,omitempty"`
}

// BulkResponse reports how many mailboxes a start-all or stop-all touched.
type BulkResponse struct {
	Count  int      `json:"count"`
	Errors []string `json:"errors"`
}

// MonitorHandler exposes start, stop and status of mailbox workers.
type MonitorHandler struct {
	supervisor Supervisor
	store      MailboxStore
	logger     *zap.Logger
}

func NewMonitorHandler(supervisor Supervisor, store MailboxStore, logger *zap.Logger) *MonitorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonitorHandler{
		supervisor: supervisor,
		store:      store,
		logger:     logger.Named("api.monitor"),
	}
}

// Start handles POST /api/v1/mailboxes/{id}/monitor/start.
func (h *MonitorHandler) Start(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.ownedMailbox(w, r)
	if !ok {
		return
	}

	started, err := h.supervisor.Start(cfg)
	switch {
	case errors.Is(err, monitor.ErrMailboxDisabled):
		http.Error(w, "Mailbox is disabled", http.StatusConflict)
		return
	case errors.Is(err, monitor.ErrSupervisorClosed):
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	case err != nil:
		h.logger.Error("failed to start monitoring", zap.String("mailbox_id", cfg.ID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, StartResponse{MailboxID: cfg.ID, Started: started}, h.logger)
}

// Stop handles POST /api/v1/mailboxes/{id}/monitor/stop. A worker that does
// not exit in time is reported with 202; it has been cancelled and will exit
// on its own.
func (h *MonitorHandler) Stop(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.ownedMailbox(w, r)
	if !ok {
		return
	}

	err := h.supervisor.Stop(cfg.ID)
	if errors.Is(err, monitor.ErrStopTimeout) {
		writeJSON(w, http.StatusAccepted, StopResponse{MailboxID: cfg.ID, Error: err.Error()}, h.logger)
		return
	}
	if err != nil {
		h.logger.Error("failed to stop monitoring", zap.String("mailbox_id", cfg.ID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, StopResponse{MailboxID: cfg.ID, Stopped: true}, h.logger)
}

// Status handles GET /api/v1/mailboxes/{id}/monitor.
func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.ownedMailbox(w, r)
	if !ok {
		return
	}

	status, monitoring := h.supervisor.Status(cfg.ID)
	writeJSON(w, http.StatusOK, MonitorStatusResponse{
		Status:           status,
		Monitoring:       monitoring,
		ConnectionStatus: cfg.ConnectionStatus,
		LastSyncAt:       cfg.LastSyncAt,
	}, h.logger)
}

// StartAll handles POST /api/v1/monitor/start-all. Mailboxes that fail to
// start are listed in the response without failing the request.
func (h *MonitorHandler) StartAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context(), w, h.store, h.logger)
	if !ok {
		return
	}

	count, err := h.supervisor.StartAll(r.Context(), userID)
	var storageErr *db.StorageError
	if errors.As(err, &storageErr) {
		h.logger.Error("failed to load mailboxes", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, BulkResponse{Count: count, Errors: joinedErrors(err)}, h.logger)
}

// StopAll handles POST /api/v1/monitor/stop-all.
func (h *MonitorHandler) StopAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context(), w, h.store, h.logger)
	if !ok {
		return
	}

	count, err := h.supervisor.StopAll(userID)
	writeJSON(w, http.StatusOK, BulkResponse{Count: count, Errors: joinedErrors(err)}, h.logger)
}

// ownedMailbox loads the {id} mailbox. A mailbox of another user is
// reported as not found.
func (h *MonitorHandler) ownedMailbox(w http.ResponseWriter, r *http.Request) (*models.MailboxConfig, bool) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return nil, false
	}

	mailboxID := r.PathValue("id")
	if mailboxID == "" {
		http.Error(w, "mailbox id is required", http.StatusBadRequest)
		return nil, false
	}

	cfg, err := h.store.GetMailboxConfig(ctx, mailboxID)
	if errors.Is(err, db.ErrMailboxNotFound) || (err == nil && cfg.UserID != userID) {
		http.Error(w, "Mailbox not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load mailbox", zap.String("mailbox_id", mailboxID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}

	return cfg, true
}
