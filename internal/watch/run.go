package watch

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lvcoi/ytmp4/internal/jobs"
)

// Options are the watch subcommand flags.
type Options struct {
	Server   string
	Quality  int
	Interval time.Duration
	URL      string
}

// ParseArgs parses `watch [-server URL] [-quality N] <url>`.
func ParseArgs(args []string, output io.Writer) (Options, error) {
	opts := Options{}
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.Server, "server", "http://localhost:3000", "base URL of a running ytmp4 server")
	fs.IntVar(&opts.Quality, "quality", 0, "maximum video height (0 uses the server default)")
	fs.DurationVar(&opts.Interval, "interval", DefaultInterval, "progress polling interval")
	fs.Usage = func() {
		fmt.Fprintln(output, "Usage: ytmp4 watch [flags] <url>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return Options{}, errors.New("exactly one media URL is required")
	}
	opts.URL = strings.TrimSpace(fs.Arg(0))
	if opts.Quality < 0 {
		return Options{}, fmt.Errorf("invalid quality %d", opts.Quality)
	}
	return opts, nil
}

// ErrJobFailed is returned when the followed job ends in the error state.
var ErrJobFailed = errors.New("download failed")

// Run drives the terminal UI until the job is terminal or the user quits.
func Run(ctx context.Context, opts Options) error {
	model := NewModel(ctx, NewClient(opts.Server), opts.URL, opts.Quality, opts.Interval)
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(os.Stderr))
	final, err := program.Run()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("running terminal UI: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return nil
	}
	return outcome(m)
}

func outcome(m Model) error {
	state, err := m.Result()
	if err != nil {
		return err
	}
	if state.Status == jobs.StatusError {
		return fmt.Errorf("%w: %s", ErrJobFailed, state.Error)
	}
	return nil
}
