package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/auth"
	"quiz-arena-service/internal/config"
	transport "quiz-arena-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	issuer, err := auth.NewIssuer(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
	if err != nil {
		return err
	}

	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	if comps.relay != nil {
		go func() {
			if err := comps.relay.Run(runCtx); err != nil {
				logger.WithError(err).Error("event relay stopped")
			}
		}()
	}

	if n, err := comps.service.Resume(runCtx); err != nil {
		logger.WithError(err).Warn("failed to resume open rooms")
	} else if n > 0 {
		logger.WithField("rooms", n).Info("resumed running rooms")
	}

	idle := config.TTLDuration(cfg.Game.IdleTimeout, 30*time.Minute)
	sweeper := app.NewSweeper(comps.service, idle, config.TTLDuration(cfg.Game.SweepInterval, time.Minute), logger)
	go sweeper.Run(runCtx)

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(transport.RouterConfig{
			Service:    comps.service,
			Bus:        comps.bus,
			Issuer:     issuer,
			AdminToken: cfg.Server.AdminToken,
			Log:        logger,
		}),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	go func() {
		logger.WithField("port", finalPort).Info("starting quiz arena service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server...")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server...")
	}

	cancelRun()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// NewSweepCmd ends idle rooms once and exits; useful as a cron job next to several instances.
func NewSweepCmd(configPath *string) *cobra.Command {
	var idle time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Cancel rooms that have been idle too long",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			comps, err := buildComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			if idle <= 0 {
				idle = config.TTLDuration(cfg.Game.IdleTimeout, 30*time.Minute)
			}
			n, err := comps.service.SweepIdle(cmd.Context(), idle)
			if err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{"rooms": n, "idle": idle}).Info("sweep finished")
			return nil
		},
	}
	cmd.Flags().DurationVar(&idle, "idle", 0, "idle threshold (defaults to game.idle_timeout)")
	return cmd
}
