// Package app wires the service components together and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lvcoi/ytmp4/internal/catalog"
	"github.com/lvcoi/ytmp4/internal/config"
	"github.com/lvcoi/ytmp4/internal/jobs"
	"github.com/lvcoi/ytmp4/internal/logging"
	"github.com/lvcoi/ytmp4/internal/media"
	"github.com/lvcoi/ytmp4/internal/web"
	"github.com/lvcoi/ytmp4/internal/ws"
	"github.com/lvcoi/ytmp4/internal/youtube"
	"github.com/lvcoi/ytmp4/internal/ytdlp"
)

const nativeResolverTimeout = 30 * time.Second

// Service holds the wired components of one server instance.
type Service struct {
	Config   config.Config
	Catalog  *catalog.Catalog
	Registry *jobs.Registry
	Driver   *jobs.Driver
	Hub      *ws.Hub
	Server   *web.Server
	logger   *slog.Logger
}

// Build constructs every component from cfg. Nothing is started.
func Build(cfg config.Config, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	cat, err := catalog.New(cfg.DownloadsDir, logging.WithComponent(logger, "catalog"))
	if err != nil {
		return nil, err
	}

	// The registry observer reaches the hub through this variable so the hub
	// can snapshot the registry it observes.
	var hub *ws.Hub
	registry := jobs.NewRegistry(func(id string, state jobs.State) {
		hub.Publish(id, state)
	})
	hub = ws.NewHub(registry.Snapshot, cfg.AllowOrigin, logging.WithComponent(logger, "ws"))

	fetcher := ytdlp.NewFetcher(cfg.YtDlpPath, cat.Dir(), cfg.MergeFormat)
	driver := jobs.NewDriver(registry, fetcher, cat, logging.WithComponent(logger, "jobs"))

	server := web.New(web.Options{
		DefaultQuality: cfg.DefaultQuality,
		AllowOrigin:    cfg.AllowOrigin,
	}, web.Deps{
		Resolver: NewResolver(cfg),
		Jobs:     driver,
		States:   registry,
		Files:    cat,
		Hub:      hub,
		Logger:   logging.WithComponent(logger, "web"),
	})

	return &Service{
		Config:   cfg,
		Catalog:  cat,
		Registry: registry,
		Driver:   driver,
		Hub:      hub,
		Server:   server,
		logger:   logger,
	}, nil
}

// NewResolver selects the metadata backend named by cfg.Resolver.
func NewResolver(cfg config.Config) media.Resolver {
	if cfg.Resolver == config.ResolverYouTube {
		return youtube.NewResolver(nativeResolverTimeout)
	}
	return ytdlp.NewResolver(cfg.YtDlpPath)
}

// Run serves HTTP and the websocket hub until ctx is canceled. Jobs still
// running at shutdown are abandoned with the process.
func (s *Service) Run(ctx context.Context) error {
	if path, err := ytdlp.LookPath(s.Config.YtDlpPath); err != nil {
		s.logger.Warn("yt-dlp not found; downloads will fail until it is installed", "path", s.Config.YtDlpPath, "error", err)
	} else {
		s.logger.Info("using yt-dlp", "path", path)
	}
	s.logger.Info("download directory ready", "dir", s.Catalog.Dir(), "resolver", s.Config.Resolver)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		err := s.Server.ListenAndServe(ctx, s.Config.Addr)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}
