package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lvcoi/ytmp4/internal/catalog"
	"github.com/lvcoi/ytmp4/internal/progress"
)

// Request describes one download.
type Request struct {
	URL     string
	Quality int
}

// Process is a running fetcher. Both streams must be drained before Wait is
// called. Wait returns nil only when the process exited successfully.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
}

// Fetcher spawns the external download tool.
type Fetcher interface {
	Start(ctx context.Context, req Request) (Process, error)
}

// ArtifactLocator finds the file a successful fetch produced.
type ArtifactLocator interface {
	Latest() (string, error)
}

// Driver runs jobs in the background and is the only writer of their
// registry entries.
type Driver struct {
	registry  *Registry
	fetcher   Fetcher
	artifacts ArtifactLocator
	logger    *slog.Logger
	counter   atomic.Int64
	wg        sync.WaitGroup
}

func NewDriver(registry *Registry, fetcher Fetcher, artifacts ArtifactLocator, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		registry:  registry,
		fetcher:   fetcher,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Submit registers a new job and starts it. The returned id is already
// readable from the registry. The job outlives ctx's cancellation.
func (d *Driver) Submit(ctx context.Context, req Request) (string, error) {
	id := d.newID()
	if err := d.registry.Create(id); err != nil {
		return "", fmt.Errorf("registering job: %w", err)
	}
	d.logger.Info("job created", "job_id", id, "url", req.URL, "quality", req.Quality)

	jobCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(jobCtx, id, req)
	}()
	return id, nil
}

// Wait blocks until every submitted job reached a terminal state.
func (d *Driver) Wait() {
	d.wg.Wait()
}

func (d *Driver) newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("job_%d", d.counter.Add(1))
	}
	return id.String()
}

func (d *Driver) run(ctx context.Context, id string, req Request) {
	logger := d.logger.With("job_id", id)
	state := initialState()

	proc, err := d.fetcher.Start(ctx, req)
	if err != nil {
		logger.Error("starting downloader", "error", err)
		d.registry.Update(id, state.Fail(fmt.Sprintf("failed to start downloader: %v", err)))
		return
	}

	var g errgroup.Group
	g.Go(func() error {
		return consume(proc.Stdout(), func(line string) {
			logger.Debug("downloader output", "line", line)
			next := state
			for _, sig := range progress.ParseLine(line) {
				next = next.Apply(sig)
			}
			if next != state {
				state = next
				d.registry.Update(id, state)
			}
		})
	})
	g.Go(func() error {
		return consume(proc.Stderr(), func(line string) {
			logger.Debug("downloader stderr", "line", line)
		})
	})
	if err := g.Wait(); err != nil {
		logger.Warn("reading downloader output", "error", err)
	}

	if err := proc.Wait(); err != nil {
		logger.Warn("download failed", "error", err)
		d.registry.Update(id, state.Fail(FailureMessage))
		return
	}

	name := state.Filename
	if latest, err := d.artifacts.Latest(); err == nil && latest != "" {
		name = latest
	} else {
		logger.Warn("locating artifact, falling back to parsed filename", "error", err, "filename", name)
	}
	d.registry.Update(id, state.Complete(name, catalog.DownloadURL(name)))
	logger.Info("job complete", "filename", name)
}

// consume feeds r line by line to fn. After a read error the rest of the
// stream is discarded so the process never blocks on a full pipe.
func consume(r io.Reader, fn func(line string)) error {
	if r == nil {
		return nil
	}
	scanner := progress.NewScanner(r)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}
