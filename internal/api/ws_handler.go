package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/vdavid/mailpilot/internal/auth"
	ws "github.com/vdavid/mailpilot/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler handles the /api/v1/ws endpoint that streams pipeline
// events to the dashboard.
type WebSocketHandler struct {
	users  UserResolver
	hub    *ws.Hub
	logger *zap.Logger
}

func NewWebSocketHandler(users UserResolver, hub *ws.Hub, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		users:  users,
		hub:    hub,
		logger: logger.Named("api.ws"),
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The server runs behind a reverse proxy in a trusted environment.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with the Hub.
// Browsers cannot set headers on WebSocket connections, so the token may come
// from the ?token= query parameter instead of the Authorization header.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		h.logger.Debug("no token provided")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userEmail, err := auth.ValidateToken(token)
	if err != nil {
		h.logger.Debug("token validation failed", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.users.GetOrCreateUser(ctx, userEmail)
	if err != nil {
		h.logger.Error("failed to get or create user", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("failed to upgrade connection", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := h.hub.Register(userID, conn)
	if client == nil {
		return
	}
	h.logger.Debug("websocket connection established", zap.String("user_id", userID))

	go h.readLoop(userID, client)
}

// readLoop drains the connection until the peer goes away, then unregisters it.
func (h *WebSocketHandler) readLoop(userID string, client *ws.Client) {
	conn := client.Conn()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unregister(userID, client)
}
