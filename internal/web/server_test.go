package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lvcoi/ytmp4/internal/apperr"
	"github.com/lvcoi/ytmp4/internal/catalog"
	"github.com/lvcoi/ytmp4/internal/jobs"
	"github.com/lvcoi/ytmp4/internal/logging"
	"github.com/lvcoi/ytmp4/internal/media"
)

type fakeResolver struct {
	info *media.Info
	err  error
}

func (f fakeResolver) Resolve(context.Context, string) (*media.Info, error) { return f.info, f.err }

type fakeProcess struct {
	stdout string
	onWait func() error
}

func (p *fakeProcess) Stdout() io.Reader { return strings.NewReader(p.stdout) }
func (p *fakeProcess) Stderr() io.Reader { return strings.NewReader("") }
func (p *fakeProcess) Wait() error {
	if p.onWait == nil {
		return nil
	}
	return p.onWait()
}

type fakeFetcher struct {
	mu      sync.Mutex
	process func(req jobs.Request) *fakeProcess
	reqs    []jobs.Request
}

func (f *fakeFetcher) Start(_ context.Context, req jobs.Request) (jobs.Process, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	process := f.process
	f.mu.Unlock()
	return process(req), nil
}

func (f *fakeFetcher) setProcess(fn func(req jobs.Request) *fakeProcess) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.process = fn
}

func (f *fakeFetcher) requests() []jobs.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]jobs.Request(nil), f.reqs...)
}

// stubProbe swaps the ffprobe call of a real catalog.
type stubProbe struct {
	*catalog.Catalog
	result *catalog.ProbeResult
	err    error
}

func (s stubProbe) Probe(name string) (*catalog.ProbeResult, error) {
	if _, err := s.Catalog.Resolve(name); err != nil {
		return nil, err
	}
	return s.result, s.err
}

type testEnv struct {
	server   *Server
	baseURL  string
	catalog  *catalog.Catalog
	registry *jobs.Registry
	driver   *jobs.Driver
	fetcher  *fakeFetcher
}

func newTestEnv(t *testing.T, resolver media.Resolver, files func(*catalog.Catalog) FileStore) *testEnv {
	t.Helper()
	cat, err := catalog.New(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	registry := jobs.NewRegistry(nil)
	fetcher := &fakeFetcher{process: func(jobs.Request) *fakeProcess {
		return &fakeProcess{stdout: "[download]  10.0% of 1MiB\n"}
	}}
	driver := jobs.NewDriver(registry, fetcher, cat, logging.Discard())

	var store FileStore = cat
	if files != nil {
		store = files(cat)
	}
	srv := New(Options{DefaultQuality: 1080, AllowOrigin: "*"}, Deps{
		Resolver: resolver,
		Jobs:     driver,
		States:   registry,
		Files:    store,
		Logger:   logging.Discard(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		driver.Wait()
		ts.Close()
	})
	return &testEnv{server: srv, baseURL: ts.URL, catalog: cat, registry: registry, driver: driver, fetcher: fetcher}
}

func writeMedia(t *testing.T, dir, name string, modTime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
}

func doRequest(t *testing.T, method, url string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func expectError(t *testing.T, resp *http.Response, body []byte, status int, message string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, status, body)
	}
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode error body %s: %v", body, err)
	}
	if payload.Error != message {
		t.Fatalf("error = %q, want %q", payload.Error, message)
	}
}

func TestInfoEndpoint(t *testing.T) {
	info := &media.Info{
		ID: "abc", Title: "Clip", Thumbnail: "t.jpg", Duration: 61, ViewCount: 5, Uploader: "me",
		Formats: []media.Format{
			{FormatID: "18", Height: 360},
			{FormatID: "137", Height: 1080},
			{FormatID: "136", Height: 720},
			{FormatID: "399", Height: 1080},
			{FormatID: "140"},
		},
	}
	env := newTestEnv(t, fakeResolver{info: info}, nil)

	resp, body := doRequest(t, http.MethodGet, env.baseURL+"/api/info?url=https%3A%2F%2Fexample.com%2Fv", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var got struct {
		ID                 string            `json:"id"`
		AvailableQualities []int             `json:"available_qualities"`
		Formats            map[string]string `json:"formats"`
		ViewCount          int64             `json:"view_count"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fmt.Sprint(got.AvailableQualities) != "[1080 720 360]" {
		t.Fatalf("available_qualities = %v", got.AvailableQualities)
	}
	if got.Formats["1080"] != "137" || got.Formats["360"] != "18" || len(got.Formats) != 3 {
		t.Fatalf("formats = %v", got.Formats)
	}
	if got.ID != "abc" || got.ViewCount != 5 {
		t.Fatalf("unexpected body %s", body)
	}

	resp, body = doRequest(t, http.MethodGet, env.baseURL+"/api/info", nil)
	expectError(t, resp, body, http.StatusBadRequest, "URL is required")
}

func TestInfoEndpointResolverFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{name: "resolver", err: apperr.Wrap(apperr.CategoryResolver, errors.New("exit 1")), message: "Failed to fetch video info"},
		{name: "malformed", err: apperr.Wrap(apperr.CategoryMalformed, errors.New("bad json")), message: "Failed to parse video info"},
		{name: "spawn", err: apperr.Wrap(apperr.CategorySpawn, errors.New("not found")), message: "Failed to fetch video info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, fakeResolver{err: tt.err}, nil)
			resp, body := doRequest(t, http.MethodGet, env.baseURL+"/api/info?url=x", nil)
			expectError(t, resp, body, http.StatusInternalServerError, tt.message)
		})
	}
}

func TestErrorCategoriesSelectStatus(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		resolve error
		probe   error
		status  int
		message string
	}{
		{name: "info invalid input", path: "/api/info?url=x", resolve: apperr.Wrap(apperr.CategoryInvalidInput, errors.New("empty")), status: http.StatusBadRequest, message: "URL is required"},
		{name: "info not found", path: "/api/info?url=x", resolve: apperr.Wrap(apperr.CategoryNotFound, errors.New("gone")), status: http.StatusNotFound, message: "Failed to fetch video info"},
		{name: "probe invalid input", path: "/api/files/clip.mp4/probe", probe: apperr.Wrap(apperr.CategoryInvalidInput, errors.New("bad")), status: http.StatusBadRequest, message: "Invalid filename"},
		{name: "probe filesystem", path: "/api/files/clip.mp4/probe", probe: apperr.Wrap(apperr.CategoryFilesystem, errors.New("io")), status: http.StatusInternalServerError, message: "Failed to probe file"},
		{name: "probe uncategorized", path: "/api/files/clip.mp4/probe", probe: errors.New("boom"), status: http.StatusInternalServerError, message: "Failed to probe file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, fakeResolver{err: tt.resolve}, func(c *catalog.Catalog) FileStore {
				return stubProbe{Catalog: c, err: tt.probe}
			})
			resp, body := doRequest(t, http.MethodGet, env.baseURL+tt.path, nil)
			expectError(t, resp, body, tt.status, tt.message)
		})
	}
}

func TestDownloadAndPollToCompletion(t *testing.T) {
	env := newTestEnv(t, fakeResolver{}, nil)
	env.fetcher.setProcess(func(jobs.Request) *fakeProcess {
		return &fakeProcess{
			stdout: "[download] Destination: /tmp/x/My Video.mp4\n[download]  45.2% of 10MiB\n",
			onWait: func() error {
				return os.WriteFile(filepath.Join(env.catalog.Dir(), "My Video.mp4"), []byte("video-bytes"), 0o644)
			},
		}
	})

	resp, body := doRequest(t, http.MethodPost, env.baseURL+"/api/download", strings.NewReader(`{"url":"https://example.com/v","quality":"720"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var started downloadResponse
	if err := json.Unmarshal(body, &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.DownloadID == "" || started.Message != "Download started" {
		t.Fatalf("unexpected response %s", body)
	}

	var state jobs.State
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, body = doRequest(t, http.MethodGet, env.baseURL+"/api/progress/"+started.DownloadID, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("progress status = %d, body %s", resp.StatusCode, body)
		}
		state = jobs.State{}
		if err := json.Unmarshal(body, &state); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if !state.Status.IsTerminal() && (state.DownloadURL != "" || state.Error != "") {
			t.Fatalf("non-terminal poll carries terminal fields: %s", body)
		}
		if state.Status.IsTerminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never finished, last state %s", body)
		}
		time.Sleep(10 * time.Millisecond)
	}

	want := jobs.State{Progress: 100, Status: jobs.StatusComplete, Filename: "My Video.mp4", DownloadURL: "/downloads/My%20Video.mp4"}
	if state != want {
		t.Fatalf("final state = %+v, want %+v", state, want)
	}
	if reqs := env.fetcher.requests(); len(reqs) != 1 || reqs[0].Quality != 720 {
		t.Fatalf("fetcher requests = %+v", reqs)
	}

	resp, body = doRequest(t, http.MethodGet, env.baseURL+state.DownloadURL, nil)
	if resp.StatusCode != http.StatusOK || string(body) != "video-bytes" {
		t.Fatalf("serving artifact: status %d body %q", resp.StatusCode, body)
	}
}

func TestDownloadFailureIsReportedInState(t *testing.T) {
	env := newTestEnv(t, fakeResolver{}, nil)
	env.fetcher.setProcess(func(jobs.Request) *fakeProcess {
		return &fakeProcess{stdout: "ERROR: boom\n", onWait: func() error { return errors.New("exit status 1") }}
	})

	_, body := doRequest(t, http.MethodPost, env.baseURL+"/api/download", strings.NewReader(`{"url":"u"}`))
	var started downloadResponse
	if err := json.Unmarshal(body, &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	env.driver.Wait()

	_, body = doRequest(t, http.MethodGet, env.baseURL+"/api/progress/"+started.DownloadID, nil)
	var state jobs.State
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Status != jobs.StatusError || state.Progress != 0 || state.Error != "Download failed" || state.DownloadURL != "" {
		t.Fatalf("unexpected state %s", body)
	}
}

func TestDownloadValidation(t *testing.T) {
	env := newTestEnv(t, fakeResolver{}, nil)

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{name: "missing url", body: `{"quality":720}`, status: http.StatusBadRequest, message: "URL is required"},
		{name: "blank url", body: `{"url":"   "}`, status: http.StatusBadRequest, message: "URL is required"},
		{name: "empty body", body: ``, status: http.StatusBadRequest, message: "URL is required"},
		{name: "broken json", body: `{"url":`, status: http.StatusBadRequest, message: "invalid JSON payload"},
		{name: "trailing data", body: `{"url":"u"} {}`, status: http.StatusBadRequest, message: "invalid JSON payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, http.MethodPost, env.baseURL+"/api/download", strings.NewReader(tt.body))
			expectError(t, resp, body, tt.status, tt.message)
		})
	}

	big := bytes.Repeat([]byte("a"), maxRequestBodyBytes+1)
	payload := append(append([]byte(`{"url":"`), big...), []byte(`"}`)...)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/download", bytes.NewReader(payload)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversized payload, got %d", rec.Code)
	}
	if n := len(env.fetcher.requests()); n != 0 {
		t.Fatalf("rejected requests must not start jobs, got %d", n)
	}
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{raw: ``, want: 1080},
		{raw: `null`, want: 1080},
		{raw: `720`, want: 720},
		{raw: `480.9`, want: 480},
		{raw: `"360"`, want: 360},
		{raw: `"720p"`, want: 720},
		{raw: `"best"`, want: 1080},
		{raw: `0`, want: 1080},
		{raw: `-5`, want: 1080},
		{raw: `"-5"`, want: 1080},
		{raw: `true`, want: 1080},
		{raw: `[720]`, want: 1080},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := parseQuality(json.RawMessage(tt.raw), 1080); got != tt.want {
				t.Fatalf("parseQuality(%s) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestProgressUnknownID(t *testing.T) {
	env := newTestEnv(t, fakeResolver{}, nil)
	resp, body := doRequest(t, http.MethodGet, env.baseURL+"/api/progress/nonexistent", nil)
	expectError(t, resp, body, http.StatusNotFound, "Download not found")
}

func TestFilesListAndDelete(t *testing.T) {
	env := newTestEnv(t, fakeResolver{}, nil)
	now := time.Now()
	writeMedia(t, env.catalog.Dir(), "old.mp4", now.Add(-2*time.Hour))
	writeMedia(t, env.catalog.Dir(), "new clip.webm", now.Add(-time.Hour))
	writeMedia(t, env.catalog.Dir(), "notes.txt", now)

	list := func() []catalog.Entry {
		t.Helper()
		resp, body := doRequest(t, http.MethodGet, env.baseURL+"/api/files", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("list status = %d", resp.StatusCode)
		}
		var entries []catalog.Entry
		if err := json.Unmarshal(body, &entries); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		return entries
	}

	entries := list()
	if len(entries) != 2 || entries[0].Name != "new clip.webm" || entries[1].Name != "old.mp4" {
		t.Fatalf("unexpected listing %+v", entries)
	}
	if entries[0].DownloadURL != "/downloads/new%20clip.webm" {
		t.Fatalf("unexpected download url %q", entries[0].DownloadURL)
	}

	resp, body := doRequest(t, http.MethodDelete, env.baseURL+"/api/files/missing.mp4", nil)
	expectError(t, resp, body, http.StatusNotFound, "File not found")

	resp, body = doRequest(t, http.MethodDelete, env.baseURL+"/api/files/old.mp4", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"File deleted"`) {
		t.Fatalf("delete: status %d body %s", resp.StatusCode, body)
	}
	entries = list()
	if len(entries) != 1 || entries[0].Name != "new clip.webm" {
		t.Fatalf("deleted file still listed: %+v", entries)
	}

	resp, body = doRequest(t, http.MethodDelete, env.baseURL+"/api/files/..%5Cnotes.txt", nil)
	expectError(t, resp, body, http.StatusBadRequest, "Invalid filename")
}

func TestServeFilePathValidation(t *testing.T) {
	env := newTestEnv(t, fakeResolver{}, nil)
	writeMedia(t, env.catalog.Dir(), "inside.mp4", time.Now())

	outside := filepath.Join(t.TempDir(), "outside.mp4")
	if err := os.WriteFile(outside, []byte("secret"), 0o644); err != nil {
		t.Fatalf("write outside: %v", err)
	}
	symlinkErr := os.Symlink(outside, filepath.Join(env.catalog.Dir(), "escape.mp4"))

	resp, body := doRequest(t, http.MethodGet, env.baseURL+"/downloads/inside.mp4", nil)
	if resp.StatusCode != http.StatusOK || string(body) != "inside.mp4" {
		t.Fatalf("valid file: status %d body %q", resp.StatusCode, body)
	}

	resp, body = doRequest(t, http.MethodGet, env.baseURL+"/downloads/missing.mp4", nil)
	expectError(t, resp, body, http.StatusNotFound, "File not found")

	resp, body = doRequest(t, http.MethodGet, env.baseURL+"/downloads/..%5Coutside.mp4", nil)
	expectError(t, resp, body, http.StatusBadRequest, "Invalid filename")

	if symlinkErr == nil {
		resp, body = doRequest(t, http.MethodGet, env.baseURL+"/downloads/escape.mp4", nil)
		expectError(t, resp, body, http.StatusBadRequest, "Invalid filename")
	}
}

func TestProbeEndpoint(t *testing.T) {
	result := &catalog.ProbeResult{Name: "clip.mp4", Format: "mp4", Duration: 3, Streams: []catalog.Stream{{Index: 0, CodecType: "video", CodecName: "h264"}}}
	env := newTestEnv(t, fakeResolver{}, func(c *catalog.Catalog) FileStore {
		return stubProbe{Catalog: c, result: result}
	})

	resp, body := doRequest(t, http.MethodGet, env.baseURL+"/api/files/clip.mp4/probe", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body %s", resp.StatusCode, body)
	}
	var got catalog.ProbeResult
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "clip.mp4" || len(got.Streams) != 1 || got.Streams[0].CodecName != "h264" {
		t.Fatalf("unexpected probe result %s", body)
	}

	failing := newTestEnv(t, fakeResolver{}, func(c *catalog.Catalog) FileStore {
		return stubProbe{Catalog: c, err: apperr.Wrap(apperr.CategoryNotFound, catalog.ErrNotFound)}
	})
	resp, body = doRequest(t, http.MethodGet, failing.baseURL+"/api/files/gone.mp4/probe", nil)
	expectError(t, resp, body, http.StatusNotFound, "File not found")
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, fakeResolver{}, nil)
	if err := env.registry.Create("running"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	env.server.startedAt = time.Unix(1000, 0)
	env.server.now = func() time.Time { return time.Unix(1090, 0) }

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.Bytes()
	var got statusResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ActiveDownloads != 1 || got.Uptime != 90 {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, fakeResolver{}, nil)

	resp, _ := doRequest(t, http.MethodOptions, env.baseURL+"/api/download", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "DELETE") {
		t.Fatalf("allow methods = %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}

	resp, _ = doRequest(t, http.MethodGet, env.baseURL+"/api/progress/none", nil)
	checks := map[string]string{
		"X-Content-Type-Options":      "nosniff",
		"X-Frame-Options":             "DENY",
		"Referrer-Policy":             "no-referrer",
		"Access-Control-Allow-Origin": "*",
	}
	for header, want := range checks {
		if got := resp.Header.Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestCORSDisabled(t *testing.T) {
	handler := withCORS("", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/files", nil))
	if rec.Code != http.StatusTeapot || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("disabled CORS should pass through, got %d %v", rec.Code, rec.Header())
	}
}

func TestUnknownAPIRouteIsJSON404(t *testing.T) {
	env := newTestEnv(t, fakeResolver{}, nil)
	resp, body := doRequest(t, http.MethodGet, env.baseURL+"/api/nope", nil)
	expectError(t, resp, body, http.StatusNotFound, "Not found")
}

func TestListenAndServeShutsDownOnCancel(t *testing.T) {
	cat, err := catalog.New(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	registry := jobs.NewRegistry(nil)
	srv := New(Options{}, Deps{Resolver: fakeResolver{}, Jobs: jobs.NewDriver(registry, &fakeFetcher{}, cat, nil), States: registry, Files: cat, Logger: logging.Discard()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx, addr) }()

	client := &http.Client{Timeout: 500 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("server did not become ready in time")
		}
		resp, err := client.Get("http://" + addr + "/api/status")
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("server error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for server shutdown")
	}
}
