package api

import (
	"context"
	"net/http"

	"github.com/vdavid/mailpilot/internal/models"
	"go.uber.org/zap"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

type ActivityStore interface {
	UserResolver
	ListActivity(ctx context.Context, userID string, limit, offset int) ([]models.ActivityLog, error)
}

type ActivityResponse struct {
	Entries []models.ActivityLog `json:"entries"`
	Page    int                  `json:"page"`
	Limit   int                  `json:"limit"`
}

// ActivityHandler serves the pipeline's audit trail.
type ActivityHandler struct {
	store  ActivityStore
	logger *zap.Logger
}

func NewActivityHandler(store ActivityStore, logger *zap.Logger) *ActivityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityHandler{store: store, logger: logger.Named("api.activity")}
}

// List handles GET /api/v1/activity?page=&limit=.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.store, h.logger)
	if !ok {
		return
	}

	page, limit := ParsePaginationParams(r, defaultActivityLimit)
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	entries, err := h.store.ListActivity(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("failed to list activity", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.ActivityLog{}
	}

	writeJSON(w, http.StatusOK, ActivityResponse{Entries: entries, Page: page, Limit: limit}, h.logger)
}
