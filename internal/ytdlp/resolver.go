// Package ytdlp drives the yt-dlp binary: metadata lookups for /api/info and
// download processes for the job driver.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/lvcoi/ytmp4/internal/apperr"
	"github.com/lvcoi/ytmp4/internal/media"
)

// MaxInfoBytes caps the metadata document read from yt-dlp.
const MaxInfoBytes = 10 * 1024 * 1024

var errInfoTooLarge = errors.New("yt-dlp metadata exceeds size limit")

// Resolver looks up metadata with `yt-dlp --dump-json --no-download`.
type Resolver struct {
	Path string
}

// NewResolver returns a Resolver for the binary at path ("yt-dlp" when empty).
func NewResolver(path string) *Resolver {
	return &Resolver{Path: binary(path)}
}

func (r *Resolver) Resolve(ctx context.Context, url string) (*media.Info, error) {
	if strings.TrimSpace(url) == "" {
		return nil, apperr.Wrap(apperr.CategoryInvalidInput, errors.New("url is required"))
	}

	cmd := exec.CommandContext(ctx, binary(r.Path), "--dump-json", "--no-download", "--", url)
	stdout := &cappedBuffer{limit: MaxInfoBytes}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, apperr.Wrap(apperr.CategoryResolver,
				fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr.String())))
		}
		return nil, apperr.Wrap(apperr.CategorySpawn, fmt.Errorf("running yt-dlp: %w", err))
	}
	if stdout.truncated {
		return nil, apperr.Wrap(apperr.CategoryMalformed, errInfoTooLarge)
	}

	var info media.Info
	if err := json.Unmarshal(stdout.buf.Bytes(), &info); err != nil {
		return nil, apperr.Wrap(apperr.CategoryMalformed, fmt.Errorf("decoding yt-dlp metadata: %w", err))
	}
	return &info, nil
}

// cappedBuffer keeps at most limit bytes and silently drops the rest so the
// child never blocks on a full pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func binary(path string) string {
	if strings.TrimSpace(path) == "" {
		return "yt-dlp"
	}
	return path
}

// LookPath reports where the configured binary resolves on this host.
func LookPath(path string) (string, error) {
	return exec.LookPath(binary(path))
}
