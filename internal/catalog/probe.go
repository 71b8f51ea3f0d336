package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/lvcoi/ytmp4/internal/apperr"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ProbeFunc returns the raw ffprobe JSON document for path.
type ProbeFunc func(path string) (string, error)

func ffprobe(path string) (string, error) {
	return ffmpeg.Probe(path)
}

// Stream is one elementary stream inside an artifact.
type Stream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// ProbeResult summarizes the container and streams of a downloaded file.
type ProbeResult struct {
	Name     string   `json:"name"`
	Format   string   `json:"format"`
	Duration float64  `json:"duration"`
	Size     int64    `json:"size"`
	BitRate  int64    `json:"bit_rate"`
	Streams  []Stream `json:"streams"`
}

type ffprobeDocument struct {
	Streams []Stream `json:"streams"`
	Format  struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

// Probe inspects name with ffprobe.
func (c *Catalog) Probe(name string) (*ProbeResult, error) {
	path, err := c.Resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Wrap(apperr.CategoryNotFound, ErrNotFound)
		}
		return nil, apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("stat %s: %w", name, err))
	}
	if info.IsDir() {
		return nil, apperr.Wrap(apperr.CategoryNotFound, ErrNotFound)
	}

	raw, err := c.probe(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CategoryProcess, fmt.Errorf("ffprobe %s: %w", name, err))
	}
	var doc ffprobeDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, apperr.Wrap(apperr.CategoryMalformed, fmt.Errorf("decoding ffprobe output: %w", err))
	}

	result := &ProbeResult{
		Name:    name,
		Format:  doc.Format.FormatName,
		Streams: doc.Streams,
	}
	result.Duration, _ = strconv.ParseFloat(doc.Format.Duration, 64)
	result.Size, _ = strconv.ParseInt(doc.Format.Size, 10, 64)
	result.BitRate, _ = strconv.ParseInt(doc.Format.BitRate, 10, 64)
	if result.Size == 0 {
		result.Size = info.Size()
	}
	if result.Streams == nil {
		result.Streams = []Stream{}
	}
	return result, nil
}
