package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/locknd/tochka-exchange/internal/config"
	"github.com/locknd/tochka-exchange/internal/db"
	"github.com/locknd/tochka-exchange/internal/engine"
	"github.com/locknd/tochka-exchange/internal/metrics"
	"github.com/locknd/tochka-exchange/internal/server"
)

func main() {
	root := &cobra.Command{
		Use:           "exchange",
		Short:         "Tochka exchange server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	})
	if err := root.Execute(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogDev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !cfg.LogDev {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("database connected")

	ctx := context.Background()
	if err := db.EnsureSchema(ctx, conn); err != nil {
		return err
	}
	if err := db.Bootstrap(ctx, conn, cfg.AdminToken); err != nil {
		return err
	}
	logger.Info("schema ensured, bootstrap done")

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.Get()
	}

	store := db.NewStore(conn)
	core := engine.New(store, logger.Named("engine"), collector)
	api := server.New(core, logger.Named("http"), collector)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Handler(),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
