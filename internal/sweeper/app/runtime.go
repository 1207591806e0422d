// Package app hosts the standalone retry sweeper: a background process
// that re-runs failed email deliveries against the shared notification
// store while exposing a gRPC health endpoint for orchestration.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	notifapp "github.com/crewsite/notifications/internal/notifications/app"
	"github.com/crewsite/notifications/internal/notifications/delivery"
	"github.com/crewsite/notifications/internal/notifications/domain"
	"github.com/crewsite/notifications/internal/notifications/email"
	"github.com/crewsite/notifications/internal/notifications/storage/sqlite"
)

// RuntimeConfig controls sweeper startup, dependencies, and loop pacing.
type RuntimeConfig struct {
	Port   int
	DBPath string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	DirectoryBaseURL string

	SweepInterval time.Duration
	BatchSize     int
}

const (
	defaultSweeperPort      = 8091
	defaultSweeperDB        = "data/notifications.db"
	defaultSweeperInterval  = time.Minute
	defaultSweeperBatchSize = 100
)

// Run starts the sweeper dependencies and the background retry loop.
//
// The sweeper only carries senders for channels it can reach from its
// own process. Websocket rows stay untouched for the API server's
// in-process sweep, which owns the hub.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultSweeperPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultSweeperDB
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweeperInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweeperBatchSize
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sweeper storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open notification sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close notification sqlite store: %v", closeErr)
		}
	}()

	logger := log.New(log.Writer(), "sweeper: ", log.LstdFlags)
	senders, err := buildSenders(cfg, logger)
	if err != nil {
		return err
	}
	orchestrator := delivery.NewOrchestrator(store, store, senders, logger, nil)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on sweeper port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("sweeper.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("sweeper server listening at %v", listener.Addr())
	return runLoop(ctx, orchestrator, store, cfg, logger)
}

func buildSenders(cfg RuntimeConfig, logger *log.Logger) (map[domain.Channel]delivery.Sender, error) {
	senders := map[domain.Channel]delivery.Sender{
		domain.ChannelInApp: notifapp.InAppSender(),
	}

	mailer := email.NewMailer(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, message.NewPrinter(language.AmericanEnglish))
	if !mailer.Configured() {
		logger.Printf("smtp not configured, email retries disabled")
		return senders, nil
	}
	if strings.TrimSpace(cfg.DirectoryBaseURL) == "" {
		logger.Printf("directory not configured, email retries disabled")
		return senders, nil
	}

	directory, err := notifapp.NewHTTPDirectory(cfg.DirectoryBaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("init directory client: %w", err)
	}
	senders[domain.ChannelEmail] = notifapp.EmailSender(mailer, directory)
	return senders, nil
}

func runLoop(ctx context.Context, orchestrator *delivery.Orchestrator, store *sqlite.Store, cfg RuntimeConfig, logger *log.Logger) error {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result, err := orchestrator.SweepRetries(ctx, store, cfg.BatchSize)
			if err != nil {
				logger.Printf("retry sweep: %v", err)
				continue
			}
			if result.Claimed > 0 {
				logger.Printf("retry sweep claimed=%d sent=%d failed=%d abandoned=%d",
					result.Claimed, result.Sent, result.Failed, result.Abandoned)
			}
		}
	}
}
