package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/audit-engine/internal/lifecycle"
	"github.com/sells-group/audit-engine/internal/monitoring"
	"github.com/sells-group/audit-engine/internal/server"
	"github.com/sells-group/audit-engine/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the audit API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		// Missing provider credentials are reported per request so the
		// registry views stay usable.
		if err := cfg.Validate("pipeline"); err != nil {
			zap.L().Warn("pipeline config incomplete", zap.Error(err))
		}
		metrics := monitoring.New()
		env, err := buildPipeline(ctx, true, metrics)
		if err != nil {
			return err
		}
		defer env.Close()

		seeded, err := env.Registry.Seed(ctx, time.Now())
		if err != nil {
			zap.L().Warn("registry seeding failed", zap.Error(err))
		} else if seeded {
			zap.L().Info("registry seeded", zap.String("policy", cfg.Registry.SeedPolicy))
		}

		sessions := session.NewManager(session.Deps{
			Resolver:  env.Resolver,
			Extractor: env.Extractor,
			Verifier:  env.Verifier,
			Registry:  env.Registry,
			Metrics:   metrics,
			Timeouts:  lifecycle.TimeoutsFromConfig(cfg.LLM),
		}, time.Duration(cfg.Session.IdleTimeoutMins)*time.Minute,
			session.WithMaxSessions(cfg.Session.MaxSessions))
		go sessions.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(server.Options{
			Sessions:       sessions,
			Registry:       env.Registry,
			Metrics:        metrics,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
