// Package config resolves server settings from defaults, YTMP4_* environment
// variables and command-line flags, in that order of precedence.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	ResolverYTDLP   = "ytdlp"
	ResolverYouTube = "youtube"
)

type Config struct {
	Addr           string
	DownloadsDir   string
	YtDlpPath      string
	Resolver       string
	DefaultQuality int
	MergeFormat    string
	AllowOrigin    string
	LogLevel       string
	LogFormat      string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:           ":3000",
		DownloadsDir:   "downloads",
		YtDlpPath:      "yt-dlp",
		Resolver:       ResolverYTDLP,
		DefaultQuality: 1080,
		MergeFormat:    "mp4",
		AllowOrigin:    "*",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load builds a Config from the environment and args (without the program
// name). lookup is usually os.LookupEnv.
func Load(args []string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("ytmp4", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.DownloadsDir, "downloads", cfg.DownloadsDir, "directory finished downloads are written to")
	fs.StringVar(&cfg.YtDlpPath, "yt-dlp", cfg.YtDlpPath, "path to the yt-dlp binary")
	fs.StringVar(&cfg.Resolver, "resolver", cfg.Resolver, "metadata backend: ytdlp or youtube")
	fs.IntVar(&cfg.DefaultQuality, "default-quality", cfg.DefaultQuality, "maximum video height when a request names none")
	fs.StringVar(&cfg.MergeFormat, "merge-format", cfg.MergeFormat, "container the fetcher merges streams into")
	fs.StringVar(&cfg.AllowOrigin, "allow-origin", cfg.AllowOrigin, "Access-Control-Allow-Origin value (empty disables CORS)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("YTMP4_ADDR", &c.Addr)
	str("YTMP4_DOWNLOADS_DIR", &c.DownloadsDir)
	str("YTMP4_YTDLP", &c.YtDlpPath)
	str("YTMP4_RESOLVER", &c.Resolver)
	str("YTMP4_MERGE_FORMAT", &c.MergeFormat)
	str("YTMP4_LOG_LEVEL", &c.LogLevel)
	str("YTMP4_LOG_FORMAT", &c.LogFormat)
	// An explicitly empty origin disables CORS, so presence is what counts.
	if v, ok := lookup("YTMP4_ALLOW_ORIGIN"); ok {
		c.AllowOrigin = strings.TrimSpace(v)
	}
	if v, ok := lookup("YTMP4_DEFAULT_QUALITY"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid YTMP4_DEFAULT_QUALITY %q: %w", v, err)
		}
		c.DefaultQuality = n
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch c.Resolver {
	case ResolverYTDLP, ResolverYouTube:
	default:
		return fmt.Errorf("invalid resolver %q (expected %s or %s)", c.Resolver, ResolverYTDLP, ResolverYouTube)
	}
	if c.DefaultQuality <= 0 {
		return fmt.Errorf("default quality must be positive, got %d", c.DefaultQuality)
	}
	if strings.TrimSpace(c.DownloadsDir) == "" {
		return fmt.Errorf("downloads directory is required")
	}
	if strings.TrimSpace(c.YtDlpPath) == "" {
		return fmt.Errorf("yt-dlp path is required")
	}
	return nil
}
