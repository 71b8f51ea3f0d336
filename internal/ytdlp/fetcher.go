package ytdlp

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"

	"github.com/lvcoi/ytmp4/internal/apperr"
	"github.com/lvcoi/ytmp4/internal/jobs"
)

// OutputTemplate names artifacts after the media title.
const OutputTemplate = "%(title)s.%(ext)s"

// Fetcher starts one yt-dlp download process per job.
type Fetcher struct {
	Path        string
	OutputDir   string
	MergeFormat string
}

func NewFetcher(path, outputDir, mergeFormat string) *Fetcher {
	if mergeFormat == "" {
		mergeFormat = "mp4"
	}
	return &Fetcher{Path: binary(path), OutputDir: outputDir, MergeFormat: mergeFormat}
}

// FormatSelector prefers separate streams capped at height, then a muxed
// stream capped at height, then anything.
func FormatSelector(height int) string {
	return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]/best", height, height)
}

// Args returns the yt-dlp argument list for req.
func (f *Fetcher) Args(req jobs.Request) []string {
	return []string{
		"-f", FormatSelector(req.Quality),
		"--merge-output-format", f.MergeFormat,
		"-o", filepath.Join(f.OutputDir, OutputTemplate),
		"--newline",
		"--progress",
		"--",
		req.URL,
	}
}

func (f *Fetcher) Start(ctx context.Context, req jobs.Request) (jobs.Process, error) {
	cmd := exec.CommandContext(ctx, binary(f.Path), f.Args(req)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperr.Wrap(apperr.CategorySpawn, fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, apperr.Wrap(apperr.CategorySpawn, fmt.Errorf("stderr pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return nil, apperr.Wrap(apperr.CategorySpawn, err)
	}
	return &process{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type process struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (p *process) Stdout() io.Reader { return p.stdout }
func (p *process) Stderr() io.Reader { return p.stderr }

func (p *process) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return apperr.Wrap(apperr.CategoryProcess, fmt.Errorf("yt-dlp exited: %w", err))
	}
	return nil
}
