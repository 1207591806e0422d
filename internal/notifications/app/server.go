package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/crewsite/notifications/internal/notifications/delivery"
	"github.com/crewsite/notifications/internal/notifications/domain"
	"github.com/crewsite/notifications/internal/notifications/email"
	"github.com/crewsite/notifications/internal/notifications/fanout"
	"github.com/crewsite/notifications/internal/notifications/push"
	"github.com/crewsite/notifications/internal/notifications/service"
	"github.com/crewsite/notifications/internal/notifications/storage/sqlite"
	"github.com/crewsite/notifications/internal/platform/timeouts"
)

// Config defines the inputs for the notification HTTP process.
type Config struct {
	HTTPAddr string
	DBPath   string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// DirectoryBaseURL points at the service that owns user and project
	// records. Empty disables email delivery and team fan-out.
	DirectoryBaseURL string

	// Authorizer resolves websocket tokens to user ids. Nil means the
	// hub trusts the user_id query parameter, which is only acceptable
	// behind an authenticating gateway.
	Authorizer push.Authorizer

	// SweepInterval paces the in-process retry sweep. Zero or negative
	// applies the default; the standalone sweeper can run alongside it.
	SweepInterval  time.Duration
	SweepBatchSize int

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 100
)

// Server hosts the notification HTTP and websocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	sweepInterval   time.Duration
	sweepBatchSize  int
	httpServer      *http.Server
	store           *sqlite.Store
	hub             *push.Hub
	orchestrator    *delivery.Orchestrator
	logger          *log.Logger

	// Service and Notifier are exposed for embedding callers, such as
	// other services in the same process emitting events directly.
	Service  *service.Service
	Notifier *fanout.Notifier
}

// NewServer wires the store, hub, mailer, and service behind one HTTP
// listener.
func NewServer(config Config) (*Server, error) {
	if config.HTTPAddr == "" {
		return nil, errors.New("HTTP address is required")
	}
	if config.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaultSweepInterval
	}
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = defaultSweepBatchSize
	}

	store, err := sqlite.Open(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open notification store: %w", err)
	}

	logger := log.New(log.Writer(), "notifications: ", log.LstdFlags)
	localizer := message.NewPrinter(language.AmericanEnglish)

	var hub *push.Hub
	if config.Authorizer != nil {
		hub = push.NewHub(config.Authorizer)
	} else {
		hub = push.NewInsecureHub()
	}

	var directory *HTTPDirectory
	if config.DirectoryBaseURL != "" {
		directory, err = NewHTTPDirectory(config.DirectoryBaseURL, nil)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("init directory client: %w", err)
		}
	}

	mailer := email.NewMailer(email.Config{
		Host:     config.SMTPHost,
		Port:     config.SMTPPort,
		Username: config.SMTPUsername,
		Password: config.SMTPPassword,
		From:     config.SMTPFrom,
	}, localizer)

	senders := map[domain.Channel]delivery.Sender{
		domain.ChannelInApp:     inAppSender{},
		domain.ChannelWebSocket: hubSender{hub: hub},
	}
	if mailer.Configured() && directory != nil {
		senders[domain.ChannelEmail] = emailSender{mailer: mailer, directory: directory}
	}

	orchestrator := delivery.NewOrchestrator(store, store, senders, logger, nil)

	opts := service.Options{
		Pusher: hub,
		Logger: logger,
	}
	if mailer.Configured() && directory != nil {
		opts.Mailer = mailer
		opts.Directory = directory
	}
	svc := service.NewService(store, orchestrator, opts)

	var users fanout.UserDirectory
	var projects fanout.ProjectDirectory
	if directory != nil {
		users = directory
		projects = directory
	}
	notifier := fanout.NewNotifier(svc, users, projects, store, logger)

	handler := NewHandler(svc, notifier, hub.Handler(), logger)

	return &Server{
		httpAddr:        config.HTTPAddr,
		shutdownTimeout: config.ShutdownTimeout,
		sweepInterval:   config.SweepInterval,
		sweepBatchSize:  config.SweepBatchSize,
		httpServer: &http.Server{
			Addr:              config.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
		store:        store,
		hub:          hub,
		orchestrator: orchestrator,
		logger:       logger,
		Service:      svc,
		Notifier:     notifier,
	}, nil
}

// Run creates and serves a notification server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init notification server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve notifications: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("notification server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("notification server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweepLoop(sweepCtx)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// sweepLoop re-runs due retryable deliveries on a fixed interval. The
// hub lives in this process, so websocket rows can only be retried here.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.orchestrator.SweepRetries(ctx, s.store, s.sweepBatchSize)
			if err != nil {
				s.logger.Printf("retry sweep: %v", err)
				continue
			}
			if result.Claimed > 0 {
				s.logger.Printf("retry sweep claimed=%d sent=%d failed=%d abandoned=%d",
					result.Claimed, result.Sent, result.Failed, result.Abandoned)
			}
		}
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close notification store: %v", err)
		}
	}
}
