package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"proxysheet/internal/app"
	"proxysheet/internal/handlers"
	u "proxysheet/internal/utils"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP print service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sigint := make(chan os.Signal, 1)
			signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigint)
			return runServe(cfg, sigint)
		},
	}
}

// runServe serves until a signal arrives on sigint.
func runServe(cfg u.Config, sigint <-chan os.Signal) error {
	svc := buildServices(cfg)
	defer svc.pool.Close()

	stop := make(chan struct{})
	if err := u.LoadTokens(cfg); err != nil {
		u.Error("Failed to load API keys", "error", err)
	}
	if cfg.Auth.Postgres.Host != "" {
		go u.RefreshTokensPeriodically(cfg.Auth.Postgres, cfg.Auth.RefreshInterval, stop)
	}
	pruned := app.StartCachePruner(svc.printer, cfg.Cache.PruneInterval, stop)

	web := app.SetupApp(cfg, handlers.NewPrintService(cfg, svc.printer, svc.pool, svc.cache))
	startServer(web, cfg.Server.Host+cfg.Server.Port, sigint)

	close(stop)
	<-pruned
	return nil
}

// startServer starts the Fiber app and blocks until a shutdown signal
func startServer(web *fiber.App, addr string, sigint <-chan os.Signal) {
	go func() {
		if err := web.Listen(addr); err != nil {
			u.Error("Server error", "error", err)
		}
	}()
	u.Info("Server listening", "addr", addr)

	<-sigint
	u.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := web.ShutdownWithContext(ctx); err != nil {
		u.Error("Server forced to shutdown", "error", err)
	}
	u.Info("Server stopped cleanly")
}
