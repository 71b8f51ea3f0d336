package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
)

type downloadRequest struct {
	URL     string          `json:"url"`
	Quality json.RawMessage `json:"quality"`
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

// decodeJSONBody reads a single JSON object. An empty body decodes as {}.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *requestError {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return &requestError{http.StatusRequestEntityTooLarge, "request body too large"}
		case errors.Is(err, io.EOF):
			return nil
		}
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	return nil
}

// parseQuality accepts a JSON number or a string with a leading integer
// ("720", "720p"). Anything else, including values <= 0, yields fallback.
func parseQuality(raw json.RawMessage, fallback int) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallback
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n >= 1 && n <= math.MaxInt32 {
			return int(n)
		}
		return fallback
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fallback
	}
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
