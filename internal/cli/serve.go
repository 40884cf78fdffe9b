package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nanohit/nocturne/internal/config"
	"github.com/nanohit/nocturne/internal/logger"
	"github.com/nanohit/nocturne/internal/metrics"
	"github.com/nanohit/nocturne/pkg/clerk"
	"github.com/nanohit/nocturne/pkg/dispatch"
	"github.com/nanohit/nocturne/pkg/pool"
	"github.com/nanohit/nocturne/pkg/server"
	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker server",
	Long: `Run the broker server in the foreground. Accounts from the config
file seed the session pool; new accounts listed in the file while the broker
is running are picked up automatically.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flag overrides
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := config.NewValidator().ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLogger.Close()
	zl := appLogger.GetZerolog()

	m := metrics.NewMetrics()

	auth := clerk.New(clerk.Options{
		BaseURL:       cfg.Upstream.ClerkBase,
		UserAgent:     cfg.Upstream.UserAgent,
		DefaultBudget: cfg.Pool.DefaultBudget,
		Logger:        zl.With().Str("component", "clerk").Logger(),
	})

	credentials := make([]pool.Credential, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		credentials = append(credentials, pool.Credential{Email: a.Email, Password: a.Password})
	}

	accountPool, err := pool.New(pool.Options{
		Credentials:   credentials,
		DefaultBudget: cfg.Pool.DefaultBudget,
		Auth:          auth,
		Metrics:       m,
		Logger:        zl.With().Str("component", "pool").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer accountPool.Close()

	dispatcher, err := dispatch.New(dispatch.Options{
		Pool:         accountPool,
		BaseURL:      cfg.Upstream.OuterfaceBase,
		DefaultModel: cfg.Chat.DefaultModel,
		SystemPrompt: cfg.Chat.SystemPrompt,
		Metrics:      m,
		Logger:       zl.With().Str("component", "dispatch").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	srv, err := server.NewServer(server.Options{
		Host:                 cfg.Server.Host,
		Port:                 cfg.Server.Port,
		RateLimitPerMinute:   cfg.Server.RateLimitPerMinute,
		AdminSecret:          cfg.Admin.Secret,
		AdminDefaultPassword: cfg.Admin.DefaultPassword,
	}, accountPool, dispatcher, m, zl.With().Str("component", "server").Logger())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config watcher: append newly listed accounts to the running pool
	watcher := config.NewWatcher(loader, func(next *config.Config) {
		for _, a := range next.Accounts {
			if err := accountPool.Add(a.Email, a.Password); err != nil {
				continue // already present
			}
		}
	}, zl.With().Str("component", "config").Logger())
	go func() {
		if err := watcher.Run(ctx); err != nil {
			zl.Warn().Err(err).Msg("Config watcher stopped")
		}
	}()

	// Optional scheduled revival of exhausted accounts
	if cfg.Pool.ReviveSchedule != "" {
		reviver, err := pool.NewReviver(accountPool, cfg.Pool.ReviveSchedule,
			zl.With().Str("component", "reviver").Logger())
		if err != nil {
			return fmt.Errorf("failed to create reviver: %w", err)
		}
		go func() {
			if err := reviver.Run(ctx); err != nil {
				zl.Warn().Err(err).Msg("Reviver stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		zl.Info().Msg("Shutdown signal received")
		return srv.Stop()
	}
}
