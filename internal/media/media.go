// Package media holds the metadata model shared by the resolver backends and
// the HTTP layer.
package media

import (
	"context"
	"sort"
)

// Resolver fetches metadata for a media URL without downloading it.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*Info, error)
}

// Format is one encoding variant offered by the source.
type Format struct {
	FormatID       string `json:"format_id"`
	Height         int    `json:"height,omitempty"`
	Ext            string `json:"ext,omitempty"`
	VCodec         string `json:"vcodec,omitempty"`
	ACodec         string `json:"acodec,omitempty"`
	Filesize       int64  `json:"filesize,omitempty"`
	FilesizeApprox int64  `json:"filesize_approx,omitempty"`
}

// Size returns the exact size when known, else the approximation.
func (f Format) Size() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

// Info mirrors the subset of the yt-dlp --dump-json document the service uses.
type Info struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Thumbnail string   `json:"thumbnail"`
	Duration  float64  `json:"duration"`
	ViewCount int64    `json:"view_count"`
	Uploader  string   `json:"uploader"`
	Formats   []Format `json:"formats"`
}

// Summary is the /api/info response body.
type Summary struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Thumbnail          string         `json:"thumbnail"`
	Duration           float64        `json:"duration"`
	ViewCount          int64          `json:"view_count"`
	Uploader           string         `json:"uploader"`
	AvailableQualities []int          `json:"available_qualities"`
	Formats            map[int]string `json:"formats"`
}

// Summarize reduces info to the response shape. For every height the first
// listed format id is kept; qualities are sorted highest first.
func Summarize(info *Info) Summary {
	qualities := make(map[int]string)
	for _, f := range info.Formats {
		if f.Height <= 0 {
			continue
		}
		if _, seen := qualities[f.Height]; !seen {
			qualities[f.Height] = f.FormatID
		}
	}

	heights := make([]int, 0, len(qualities))
	for h := range qualities {
		heights = append(heights, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	return Summary{
		ID:                 info.ID,
		Title:              info.Title,
		Thumbnail:          info.Thumbnail,
		Duration:           info.Duration,
		ViewCount:          info.ViewCount,
		Uploader:           info.Uploader,
		AvailableQualities: heights,
		Formats:            qualities,
	}
}
