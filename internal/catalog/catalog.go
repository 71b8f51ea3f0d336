// Package catalog is a thin view over the download directory: listing,
// deleting, serving and probing finished artifacts.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lvcoi/ytmp4/internal/apperr"
)

// URLPrefix is where the download directory is exposed over HTTP.
const URLPrefix = "/downloads/"

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".webm": {},
	".mkv":  {},
}

// Suffixes the fetcher uses for in-flight files.
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

var (
	ErrNotFound        = errors.New("file not found")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrEmpty           = errors.New("download directory is empty")
)

// Entry describes one file in the download directory.
type Entry struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Created     time.Time `json:"created"`
	DownloadURL string    `json:"downloadUrl"`
}

// Catalog reads the download directory on every call; nothing is cached.
type Catalog struct {
	dir    string
	logger *slog.Logger
	probe  ProbeFunc
}

// New returns a catalog rooted at dir, creating the directory when missing.
func New(dir string, logger *slog.Logger) (*Catalog, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving download directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{dir: abs, logger: logger, probe: ffprobe}, nil
}

// Dir returns the absolute download directory.
func (c *Catalog) Dir() string { return c.dir }

// DownloadURL returns the relative URL serving name.
func DownloadURL(name string) string {
	return URLPrefix + url.PathEscape(name)
}

// List returns the video files in the directory, newest first.
func (c *Catalog) List() ([]Entry, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("reading download directory: %w", err))
	}

	items := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			c.logger.Warn("skipping catalog entry", "name", entry.Name(), "error", err)
			continue
		}
		items = append(items, Entry{
			Name:        info.Name(),
			Size:        info.Size(),
			Created:     info.ModTime(),
			DownloadURL: DownloadURL(info.Name()),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Created.Equal(items[j].Created) {
			return items[i].Name < items[j].Name
		}
		return items[i].Created.After(items[j].Created)
	})
	return items, nil
}

// Latest returns the name of the most recently modified regular file.
// In-flight partial files are ignored.
func (c *Catalog) Latest() (string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return "", apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("reading download directory: %w", err))
	}

	var (
		newest   string
		newestAt time.Time
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || isPartial(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if newest == "" || mod.After(newestAt) || (mod.Equal(newestAt) && entry.Name() > newest) {
			newest = entry.Name()
			newestAt = mod
		}
	}
	if newest == "" {
		return "", ErrEmpty
	}
	return newest, nil
}

// Delete removes name from the directory.
func (c *Catalog) Delete(name string) error {
	path, err := c.Resolve(name)
	if err != nil {
		return err
	}
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.Wrap(apperr.CategoryNotFound, ErrNotFound)
		}
		return apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("stat %s: %w", name, err))
	}
	if info.IsDir() {
		return apperr.Wrap(apperr.CategoryNotFound, ErrNotFound)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.Wrap(apperr.CategoryNotFound, ErrNotFound)
		}
		return apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("removing %s: %w", name, err))
	}
	c.logger.Info("file deleted", "name", name)
	return nil
}

// Resolve maps a single-segment file name to its path inside the directory,
// rejecting traversal and symlinks that escape the directory.
func (c *Catalog) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "\x00") {
		return "", apperr.Wrap(apperr.CategoryInvalidInput, ErrInvalidFilename)
	}

	fullPath := filepath.Join(c.dir, name)
	realDir, err := resolveRealPath(c.dir)
	if err != nil {
		return "", apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("resolving download directory: %w", err))
	}
	realTarget, err := resolveRealPath(fullPath)
	if err != nil {
		return "", apperr.Wrap(apperr.CategoryInvalidInput, ErrInvalidFilename)
	}
	rel, err := filepath.Rel(realDir, realTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", apperr.Wrap(apperr.CategoryInvalidInput, ErrInvalidFilename)
	}
	return fullPath, nil
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func resolveRealPath(path string) (string, error) {
	cleaned := filepath.Clean(path)
	realPath, err := filepath.EvalSymlinks(cleaned)
	if err == nil {
		return realPath, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	parent := filepath.Dir(cleaned)
	if parent == cleaned {
		return "", err
	}

	realParent, parentErr := resolveRealPath(parent)
	if parentErr != nil {
		return "", parentErr
	}
	return filepath.Join(realParent, filepath.Base(cleaned)), nil
}
