package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vdavid/mailpilot/internal/agent"
	"github.com/vdavid/mailpilot/internal/api"
	"github.com/vdavid/mailpilot/internal/auth"
	"github.com/vdavid/mailpilot/internal/autoreply"
	"github.com/vdavid/mailpilot/internal/classify"
	"github.com/vdavid/mailpilot/internal/config"
	"github.com/vdavid/mailpilot/internal/crypto"
	"github.com/vdavid/mailpilot/internal/db"
	"github.com/vdavid/mailpilot/internal/events"
	"github.com/vdavid/mailpilot/internal/imap"
	"github.com/vdavid/mailpilot/internal/logging"
	"github.com/vdavid/mailpilot/internal/monitor"
	"github.com/vdavid/mailpilot/internal/smtp"
	ws "github.com/vdavid/mailpilot/internal/websocket"
	"go.uber.org/zap"
)

const shutdownGrace = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mailpilot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.CloseConnection(pool)
	logger.Info("connected to database")

	store := db.NewStore(pool)

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		return fmt.Errorf("failed to create encryptor: %w", err)
	}

	hub := ws.NewHub(10, logger.Named("websocket"))
	publisher, closePublisher, err := newPublisher(cfg, hub, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	supervisor := newSupervisor(cfg, store, encryptor, publisher, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewServer(store, supervisor, hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.AutostartAll {
		count, err := supervisor.StartEnabled(ctx)
		if err != nil {
			logger.Warn("some mailboxes failed to start", zap.Int("started", count), zap.Error(err))
		} else {
			logger.Info("monitoring enabled mailboxes", zap.Int("started", count))
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", server.Addr), zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop mailbox workers: %w", err)
	}
	return nil
}

func newSupervisor(cfg *config.Config, store *db.Store, encryptor *crypto.Encryptor, publisher events.Publisher, logger *zap.Logger) *monitor.Supervisor {
	agentClient := agent.NewClient(agent.Options{
		BaseURL: cfg.AgentURL,
		Timeout: cfg.AgentTimeout,
		Logger:  logger.Named("agent"),
	})
	sender := smtp.NewSender(smtp.SenderOptions{UseTLS: !cfg.InsecureMail, Timeout: cfg.MailTimeout})

	deps := monitor.Dependencies{
		Store:       store,
		Dialer:      imap.NewDialer(imap.DialerOptions{UseTLS: !cfg.InsecureMail, Timeout: cfg.MailTimeout}),
		Classifier:  classify.NewClassifier(agentClient, logger.Named("classify")),
		Responder:   autoreply.NewResponder(agentClient, sender, store, logger.Named("autoreply")),
		Publisher:   publisher,
		Credentials: encryptor,
		Logger:      logger.Named("monitor"),
	}
	return monitor.NewSupervisor(deps, monitor.Options{
		PollInterval: cfg.PollInterval,
		ErrorBackoff: cfg.ErrorBackoff,
		BatchSize:    cfg.BatchSize,
		SearchFilter: imap.SearchFilter(cfg.SearchFilter),
		StopTimeout:  cfg.StopTimeout,
	})
}

// newPublisher always pushes events to WebSocket clients and, when an AMQP
// URL is configured, to the broker as well.
func newPublisher(cfg *config.Config, hub *ws.Hub, logger *zap.Logger) (events.Publisher, func(), error) {
	hubPublisher := events.NewHubPublisher(hub)
	if cfg.AMQPURL == "" {
		return hubPublisher, func() {}, nil
	}

	amqpPublisher, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to message broker: %w", err)
	}
	logger.Info("publishing events to message broker", zap.String("exchange", cfg.AMQPExchange))

	closeFn := func() {
		if err := amqpPublisher.Close(); err != nil {
			logger.Warn("failed to close message broker connection", zap.Error(err))
		}
	}
	return events.Multi{hubPublisher, amqpPublisher}, closeFn, nil
}

// ServerStore is the persistence the HTTP surface reads.
type ServerStore interface {
	api.MailboxStore
	api.ActivityStore
}

// NewServer creates the HTTP handler for the control API.
func NewServer(store ServerStore, supervisor api.Supervisor, hub *ws.Hub, logger *zap.Logger) http.Handler {
	monitorHandler := api.NewMonitorHandler(supervisor, store, logger)
	activityHandler := api.NewActivityHandler(store, logger)
	wsHandler := api.NewWebSocketHandler(store, hub, logger)

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.RequireAuth(logger, h)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleRoot)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/v1/mailboxes/{id}/monitor/start", protected(monitorHandler.Start))
	mux.Handle("POST /api/v1/mailboxes/{id}/monitor/stop", protected(monitorHandler.Stop))
	mux.Handle("GET /api/v1/mailboxes/{id}/monitor", protected(monitorHandler.Status))
	mux.Handle("POST /api/v1/monitor/start-all", protected(monitorHandler.StartAll))
	mux.Handle("POST /api/v1/monitor/stop-all", protected(monitorHandler.StopAll))
	mux.Handle("GET /api/v1/activity", protected(activityHandler.List))
	// The WebSocket handler authenticates via query parameter since browsers
	// can't set headers on WebSocket connections.
	mux.HandleFunc("GET /api/v1/ws", wsHandler.Handle)

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "MailPilot is running")
}
