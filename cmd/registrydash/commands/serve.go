package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/registrydash/internal/config"
	"git.home.luguber.info/inful/registrydash/internal/dashboard"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
	"git.home.luguber.info/inful/registrydash/internal/metrics"
	"git.home.luguber.info/inful/registrydash/internal/server/httpserver"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Address string `short:"a" help:"Listen address (overrides server.address)"`
	NoWatch bool   `help:"Do not reload the configuration file when it changes"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, logger, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return s.serve(ctx, cfg, root.Config, logger, nil)
}

// serve runs until ctx is cancelled. ready, when set, receives the bound
// address once the API is listening.
func (s *ServeCmd) serve(ctx context.Context, cfg *config.Config, configPath string, logger *slog.Logger, ready func(addr string)) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	dash, err := dashboard.New(cfg, dashboard.Options{Recorder: recorder, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := dash.Close(); err != nil {
			logger.Warn("Failed to close dashboard", logfields.Error(err))
		}
	}()
	if err := dash.Start(ctx); err != nil {
		return err
	}

	addr := cfg.Server.Address
	if s.Address != "" {
		addr = s.Address
	}
	srv := httpserver.New(addr, dash, httpserver.Options{
		MetricsHandler: metrics.HTTPHandler(reg),
		Logger:         logger,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	if !s.NoWatch {
		watcher, err := config.NewWatcher(configPath, dash.ApplyConfig, config.WithWatcherLogger(logger))
		if err != nil {
			logger.Warn("Configuration hot reload disabled", logfields.Path(configPath), logfields.Error(err))
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("Configuration hot reload disabled", logfields.Path(configPath), logfields.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	if ready != nil {
		ready(srv.Addr())
	}
	logger.Info("Serving model registry dashboard", slog.String("address", srv.Addr()))
	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	return srv.Stop(stopCtx)
}
