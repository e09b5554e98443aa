// Command laco-monitor is a timeline monitor for laco applications. Clients
// connect with devtools.Dial; the HTTP API lists sessions, shows their
// timelines and sends jump requests back.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jilio/laco/devtools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	configPath string
	addr       string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:          "laco-monitor",
		Short:        "Timeline monitor for laco stores",
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Accept client connections and serve the monitor API",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the config file")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "log level, overrides the config file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, logger)
}

// serve runs the monitor until ctx is cancelled.
func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := newMonitorMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	monitor := devtools.NewServer(
		devtools.WithServerLogger(logger),
		devtools.WithSessionHistory(cfg.MaxHistory),
		devtools.WithObserver(metrics),
	)

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(monitor, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("laco-monitor listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("laco-monitor shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	_ = monitor.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
