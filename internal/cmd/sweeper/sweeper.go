// Package sweeper parses sweeper command flags and launches the retry
// sweep runtime.
package sweeper

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/crewsite/notifications/internal/platform/cmd"
	sweeperapp "github.com/crewsite/notifications/internal/sweeper/app"
)

// Config holds sweeper command configuration.
type Config struct {
	Port             int           `env:"CREWSITE_NOTIFICATIONS_SWEEPER_PORT" envDefault:"8091"`
	DBPath           string        `env:"CREWSITE_NOTIFICATIONS_DB_PATH" envDefault:"data/notifications.db"`
	SMTPHost         string        `env:"CREWSITE_NOTIFICATIONS_SMTP_HOST"`
	SMTPPort         string        `env:"CREWSITE_NOTIFICATIONS_SMTP_PORT" envDefault:"587"`
	SMTPUsername     string        `env:"CREWSITE_NOTIFICATIONS_SMTP_USERNAME"`
	SMTPPassword     string        `env:"CREWSITE_NOTIFICATIONS_SMTP_PASSWORD"`
	SMTPFrom         string        `env:"CREWSITE_NOTIFICATIONS_SMTP_FROM"`
	DirectoryBaseURL string        `env:"CREWSITE_NOTIFICATIONS_DIRECTORY_URL"`
	SweepInterval    time.Duration `env:"CREWSITE_NOTIFICATIONS_SWEEP_INTERVAL" envDefault:"1m"`
	BatchSize        int           `env:"CREWSITE_NOTIFICATIONS_SWEEP_BATCH_SIZE" envDefault:"100"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The sweeper health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The notification SQLite database path")
	fs.StringVar(&cfg.SMTPHost, "smtp-host", cfg.SMTPHost, "The outbound SMTP host")
	fs.StringVar(&cfg.SMTPPort, "smtp-port", cfg.SMTPPort, "The outbound SMTP port")
	fs.StringVar(&cfg.SMTPUsername, "smtp-username", cfg.SMTPUsername, "The outbound SMTP username")
	fs.StringVar(&cfg.SMTPPassword, "smtp-password", cfg.SMTPPassword, "The outbound SMTP password")
	fs.StringVar(&cfg.SMTPFrom, "smtp-from", cfg.SMTPFrom, "The outbound email sender address")
	fs.StringVar(&cfg.DirectoryBaseURL, "directory-url", cfg.DirectoryBaseURL, "The user directory service base URL")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Delivery retry sweep interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Maximum deliveries claimed per sweep")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the sweeper runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSweeper, func(context.Context) error {
		return sweeperapp.Run(ctx, sweeperapp.RuntimeConfig{
			Port:             cfg.Port,
			DBPath:           cfg.DBPath,
			SMTPHost:         cfg.SMTPHost,
			SMTPPort:         cfg.SMTPPort,
			SMTPUsername:     cfg.SMTPUsername,
			SMTPPassword:     cfg.SMTPPassword,
			SMTPFrom:         cfg.SMTPFrom,
			DirectoryBaseURL: cfg.DirectoryBaseURL,
			SweepInterval:    cfg.SweepInterval,
			BatchSize:        cfg.BatchSize,
		})
	})
}
