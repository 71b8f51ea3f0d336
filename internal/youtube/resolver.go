// Package youtube resolves metadata through the YouTube player API directly,
// without shelling out to yt-dlp.
package youtube

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	youtube "github.com/kkdai/youtube/v2"

	"github.com/lvcoi/ytmp4/internal/apperr"
	"github.com/lvcoi/ytmp4/internal/media"
)

// VideoClient is the subset of *youtube.Client the resolver needs.
type VideoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
}

// Resolver implements media.Resolver on top of kkdai/youtube.
type Resolver struct {
	client VideoClient
}

// NewResolver returns a Resolver using a client with the given timeout.
func NewResolver(timeout time.Duration) *Resolver {
	return &Resolver{client: &youtube.Client{HTTPClient: &http.Client{Timeout: timeout}}}
}

// NewResolverWithClient is used by tests and callers that share a client.
func NewResolverWithClient(client VideoClient) *Resolver {
	return &Resolver{client: client}
}

func (r *Resolver) Resolve(ctx context.Context, url string) (*media.Info, error) {
	if strings.TrimSpace(url) == "" {
		return nil, apperr.Wrap(apperr.CategoryInvalidInput, fmt.Errorf("url is required"))
	}
	video, err := r.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, apperr.Wrap(apperr.CategoryResolver, fmt.Errorf("fetching video: %w", err))
	}
	if video == nil {
		return nil, apperr.Wrap(apperr.CategoryMalformed, fmt.Errorf("empty video response"))
	}
	return toInfo(video), nil
}

func toInfo(video *youtube.Video) *media.Info {
	info := &media.Info{
		ID:        video.ID,
		Title:     video.Title,
		Thumbnail: bestThumbnailURL(video.Thumbnails),
		Duration:  video.Duration.Seconds(),
		ViewCount: int64(video.Views),
		Uploader:  video.Author,
		Formats:   make([]media.Format, 0, len(video.Formats)),
	}
	for _, f := range video.Formats {
		info.Formats = append(info.Formats, toFormat(f))
	}
	return info
}

func toFormat(f youtube.Format) media.Format {
	ext, codecs := splitMimeType(f.MimeType)
	out := media.Format{
		FormatID: strconv.Itoa(f.ItagNo),
		Height:   f.Height,
		Ext:      ext,
		Filesize: f.ContentLength,
		VCodec:   "none",
		ACodec:   "none",
	}
	hasVideo := f.Width > 0 || f.Height > 0
	hasAudio := f.AudioChannels > 0
	switch {
	case hasVideo && hasAudio && len(codecs) >= 2:
		out.VCodec, out.ACodec = codecs[0], codecs[1]
	case hasVideo && len(codecs) > 0:
		out.VCodec = codecs[0]
	case hasAudio && len(codecs) > 0:
		out.ACodec = codecs[0]
	}
	return out
}

// splitMimeType turns `video/mp4; codecs="avc1.64001F, mp4a.40.2"` into
// ("mp4", ["avc1.64001F", "mp4a.40.2"]).
func splitMimeType(value string) (string, []string) {
	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		return "", nil
	}
	ext := mediaType
	if i := strings.IndexByte(mediaType, '/'); i >= 0 {
		ext = mediaType[i+1:]
	}
	var codecs []string
	for _, c := range strings.Split(params["codecs"], ",") {
		if c = strings.TrimSpace(c); c != "" {
			codecs = append(codecs, c)
		}
	}
	return ext, codecs
}

func bestThumbnailURL(thumbnails youtube.Thumbnails) string {
	bestURL := ""
	var bestArea uint
	for _, thumb := range thumbnails {
		area := thumb.Width * thumb.Height
		if area >= bestArea {
			bestArea = area
			bestURL = thumb.URL
		}
	}
	return bestURL
}
