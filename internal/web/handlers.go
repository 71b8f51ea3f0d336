package web

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lvcoi/ytmp4/internal/apperr"
	"github.com/lvcoi/ytmp4/internal/jobs"
	"github.com/lvcoi/ytmp4/internal/media"
)

type downloadResponse struct {
	DownloadID string `json:"downloadId"`
	Message    string `json:"message"`
}

type statusResponse struct {
	ActiveDownloads int     `json:"active_downloads"`
	Uptime          float64 `json:"uptime"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeJSONError(w, http.StatusBadRequest, "URL is required")
		return
	}

	info, err := s.deps.Resolver.Resolve(r.Context(), url)
	if err != nil {
		s.logger.Warn("resolving media info", "url", url, "error", err, "category", apperr.CategoryOf(err))
		msg := "Failed to fetch video info"
		switch apperr.CategoryOf(err) {
		case apperr.CategoryInvalidInput:
			msg = "URL is required"
		case apperr.CategoryMalformed:
			msg = "Failed to parse video info"
		}
		writeAppError(w, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, media.Summarize(info))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadRequest
	if reqErr := decodeJSONBody(w, r, &body); reqErr != nil {
		writeJSONError(w, reqErr.status, reqErr.message)
		return
	}
	url := strings.TrimSpace(body.URL)
	if url == "" {
		writeJSONError(w, http.StatusBadRequest, "URL is required")
		return
	}

	req := jobs.Request{URL: url, Quality: parseQuality(body.Quality, s.opts.DefaultQuality)}
	id, err := s.deps.Jobs.Submit(r.Context(), req)
	if err != nil {
		s.logger.Error("submitting download", "url", url, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to start download")
		return
	}
	writeJSON(w, http.StatusOK, downloadResponse{DownloadID: id, Message: "Download started"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	state, ok := s.deps.States.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Download not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Files.List()
	if err != nil {
		s.logger.Error("listing files", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if err := s.deps.Files.Delete(name); err != nil {
		if apperr.HTTPStatus(err) == http.StatusInternalServerError {
			s.logger.Error("deleting file", "name", name, "error", err)
		}
		writeAppError(w, err, fileErrorMessage(err, "Failed to delete file"))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "File deleted"})
}

func (s *Server) handleProbeFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	result, err := s.deps.Files.Probe(name)
	if err != nil {
		if apperr.HTTPStatus(err) == http.StatusInternalServerError {
			s.logger.Error("probing file", "name", name, "error", err)
		}
		writeAppError(w, err, fileErrorMessage(err, "Failed to probe file"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		ActiveDownloads: s.deps.States.ActiveCount(),
		Uptime:          s.now().Sub(s.startedAt).Seconds(),
	})
}

func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	path, err := s.deps.Files.Resolve(r.PathValue("filename"))
	if err != nil {
		writeAppError(w, err, fileErrorMessage(err, "Failed to read file"))
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSONError(w, http.StatusNotFound, "File not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeJSONError(w, http.StatusNotFound, "File not found")
		return
	}
	modTime := info.ModTime()
	if modTime.IsZero() {
		modTime = time.Now()
	}
	http.ServeContent(w, r, info.Name(), modTime, f)
}

// writeAppError answers with the status apperr assigns to err's category.
func writeAppError(w http.ResponseWriter, err error, message string) {
	writeJSONError(w, apperr.HTTPStatus(err), message)
}

func fileErrorMessage(err error, fallback string) string {
	switch apperr.CategoryOf(err) {
	case apperr.CategoryNotFound:
		return "File not found"
	case apperr.CategoryInvalidInput:
		return "Invalid filename"
	}
	return fallback
}
