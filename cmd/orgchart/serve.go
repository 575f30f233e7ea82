package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orgchart/internal/config"
	"orgchart/internal/handler"
	"orgchart/internal/hub"
	"orgchart/internal/metrics"
	"orgchart/internal/service"
	"orgchart/internal/session"
	"orgchart/internal/watcher"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server with the REST, session and event APIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := flags.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if path != "" {
				logger.Info("loaded config", zap.String("path", path))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting orgchart server", zap.String("version", version))

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()
	logger.Info("database opened", zap.String("path", cfg.Database.Path))

	collector := metrics.New("orgchart")
	bus := service.NewEventBus()
	svc := service.NewGraphService(repo, bus, logger)
	events := hub.New(logger)

	if cfg.Seed.Path != "" {
		if err := importSeed(ctx, svc, cfg, logger); err != nil {
			return err
		}
	}

	sessions := session.NewRegistry(session.Options{
		Account:       cfg.Graph.Account,
		Build:         cfg.GraphOptions(),
		Threshold:     cfg.Graph.Threshold,
		FrameInterval: cfg.Graph.FrameInterval.Duration(),
		GridSpacing:   cfg.Graph.GridSpacing,
		Width:         cfg.Viewport.Width,
		Height:        cfg.Viewport.Height,
		Zoom:          cfg.Viewport.Zoom,
		Fit:           cfg.FitOptions(),
		Lookup:        cfg.LookupOptions(),
	}, session.Deps{
		Backend: svc,
		Bus:     bus,
		Publish: events.Publish,
		Metrics: collector,
	}, logger)
	defer sessions.CloseAll()

	h := handler.New(svc, sessions, events, collector, handler.Options{
		Account:     cfg.Graph.Account,
		Build:       cfg.GraphOptions(),
		CORSOrigins: cfg.Server.CORSOrigins,
	}, logger)

	// no write timeout: /events streams for the life of the client
	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     h.Router(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		events.Run(gctx)
		return nil
	})

	g.Go(func() error {
		forward(gctx, bus, events)
		return nil
	})

	if cfg.Seed.Path != "" && cfg.Seed.Watch {
		w := watcher.New(cfg.Seed.Path, func(ctx context.Context) {
			if err := importSeed(ctx, svc, cfg, logger); err != nil {
				logger.Warn("seed re-import failed", zap.Error(err))
			}
		}, logger).WithDebounce(cfg.Seed.Debounce.Duration())

		g.Go(func() error {
			if err := w.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("seed watcher: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		sessions.CloseAll()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

// forward relays bus events to the event stream
func forward(ctx context.Context, bus *service.EventBus, events *hub.Hub) {
	ch := make(chan service.Event, 100)
	unsubscribe := bus.Subscribe(ch)
	defer unsubscribe()

	for {
		select {
		case ev := <-ch:
			events.Publish(hub.Message{Type: string(ev.Type), Payload: ev})
		case <-ctx.Done():
			return
		}
	}
}

func importSeed(ctx context.Context, svc *service.GraphService, cfg *config.Config, logger *zap.Logger) error {
	if _, err := os.Stat(cfg.Seed.Path); err != nil {
		return fmt.Errorf("seed file: %w", err)
	}

	strategy := service.StrategyMerge
	if cfg.Seed.Replace {
		strategy = service.StrategyReplace
	}
	res, err := svc.ImportFile(ctx, cfg.Graph.Account, cfg.Seed.Path, strategy)
	if err != nil {
		return fmt.Errorf("import seed %s: %w", cfg.Seed.Path, err)
	}

	logger.Info("seed imported",
		zap.String("path", cfg.Seed.Path),
		zap.Int("records", res.Records),
		zap.Int("nodes", res.Nodes),
		zap.Int("links", res.Links),
		zap.String("strategy", res.Strategy))
	return nil
}
