package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ytfetch/storage"
	"ytfetch/youtube"
)

type stubResolver struct {
	meta  *youtube.VideoMetadata
	err   error
	calls int
}

func (r *stubResolver) Resolve(_ context.Context, rawURL string) (*youtube.VideoMetadata, error) {
	r.calls++
	if !youtube.IsYouTubeURL(rawURL) {
		return nil, &youtube.ValidationError{Field: "url", Reason: "not a YouTube URL"}
	}
	return r.meta, r.err
}

type stubDownloader struct {
	result *youtube.DownloadResult
	err    error
	calls  int
}

func (d *stubDownloader) Download(_ context.Context, _ *youtube.VideoMetadata, _ youtube.Quality) (*youtube.DownloadResult, error) {
	d.calls++
	return d.result, d.err
}

type stubUploader struct {
	resp  *storage.UploadResponse
	err   error
	calls int
}

func (u *stubUploader) Upload(_ context.Context, _ string) (*storage.UploadResponse, error) {
	u.calls++
	return u.resp, u.err
}

const watchURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func post(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMetadataEndpoint(t *testing.T) {
	meta := &youtube.VideoMetadata{ID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up"}
	s := New(&stubResolver{meta: meta}, &stubDownloader{}, &stubUploader{}, nil)
	router := s.Router()

	rec := post(t, router, "/api/metadata", `{"url": "`+watchURL+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var got struct {
		Success  bool           `json:"success"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Success {
		t.Error("success = false")
	}
	if got.Metadata["title"] != "Never Gonna Give You Up" {
		t.Errorf("title = %v", got.Metadata["title"])
	}
	// Provenance must not leak into the public payload.
	if _, ok := got.Metadata["strategy"]; ok {
		t.Error("strategy field leaked into response")
	}
}

func TestMetadataEndpointInvalidQuality(t *testing.T) {
	resolver := &stubResolver{meta: &youtube.VideoMetadata{Title: "x"}}
	s := New(resolver, &stubDownloader{}, &stubUploader{}, nil)

	rec := post(t, s.Router(), "/api/metadata", `{"url": "`+watchURL+`", "quality": "4k"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times despite invalid quality", resolver.calls)
	}
}

func TestMetadataEndpointBadRequests(t *testing.T) {
	resolver := &stubResolver{meta: &youtube.VideoMetadata{Title: "x"}}
	s := New(resolver, &stubDownloader{}, &stubUploader{}, nil)
	router := s.Router()

	for _, body := range []string{``, `{}`, `not json`} {
		if rec := post(t, router, "/api/metadata", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times for bad requests", resolver.calls)
	}

	if rec := post(t, router, "/api/metadata", `{"url": "https://vimeo.com/1"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("non-YouTube URL: status = %d, want 400", rec.Code)
	}
}

func TestMetadataEndpointExhausted(t *testing.T) {
	resolver := &stubResolver{err: &youtube.ExhaustedError{URL: watchURL}}
	s := New(resolver, &stubDownloader{}, &stubUploader{}, nil)

	rec := post(t, s.Router(), "/api/metadata", `{"url": "`+watchURL+`"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 on exhaustion", rec.Code)
	}
}

func TestProcessEndpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dQw4w9WgXcQ.mp4")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}

	meta := &youtube.VideoMetadata{ID: "dQw4w9WgXcQ", Title: "Video"}
	d := &stubDownloader{result: &youtube.DownloadResult{Path: path, Dir: dir, Transcoded: true}}
	u := &stubUploader{resp: &storage.UploadResponse{Success: true, StatusCode: 200}}
	s := New(&stubResolver{meta: meta}, d, u, nil)

	rec := post(t, s.Router(), "/api/process", `{"url": "`+watchURL+`", "quality": "audio"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var got processResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Success || !got.Transcoded {
		t.Errorf("response = %+v", got)
	}
	if u.calls != 1 {
		t.Errorf("uploader called %d times", u.calls)
	}

	// The working directory is cleaned up after upload.
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("temp dir not removed after successful process")
	}
}

func TestProcessEndpointInvalidQuality(t *testing.T) {
	resolver := &stubResolver{meta: &youtube.VideoMetadata{Title: "x"}}
	d := &stubDownloader{}
	s := New(resolver, d, &stubUploader{}, nil)

	rec := post(t, s.Router(), "/api/process", `{"url": "`+watchURL+`", "quality": "4k"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for invalid quality", rec.Code)
	}
	if resolver.calls != 0 || d.calls != 0 {
		t.Errorf("pipeline touched (resolve=%d download=%d) despite invalid quality", resolver.calls, d.calls)
	}
}

func TestProcessEndpointDownloadError(t *testing.T) {
	meta := &youtube.VideoMetadata{ID: "abc", Title: "Video"}
	d := &stubDownloader{err: &youtube.DownloadError{URL: watchURL, Metadata: meta, Err: errors.New("all paths failed")}}
	s := New(&stubResolver{meta: meta}, d, &stubUploader{}, nil)

	rec := post(t, s.Router(), "/api/process", `{"url": "`+watchURL+`"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var got processResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Success {
		t.Error("Success = true on download failure")
	}
	if got.Metadata == nil || got.Metadata.Title != "Video" {
		t.Error("metadata not attached to download failure response")
	}
}

func TestProcessEndpointUploadError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc.mp4")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}

	meta := &youtube.VideoMetadata{ID: "abc", Title: "Video"}
	d := &stubDownloader{result: &youtube.DownloadResult{Path: path, Dir: dir}}
	u := &stubUploader{err: &storage.UploadError{URL: "https://backend", StatusCode: 502}}
	s := New(&stubResolver{meta: meta}, d, u, nil)

	rec := post(t, s.Router(), "/api/process", `{"url": "`+watchURL+`"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 for a storage backend failure", rec.Code)
	}

	var got processResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Success {
		t.Error("Success = true on upload failure")
	}
	if got.Metadata == nil || got.Metadata.Title != "Video" {
		t.Error("metadata not attached to upload failure response")
	}

	// Cleanup still happens when the upload fails.
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("temp dir not removed after failed upload")
	}
}

func TestProcessEndpointNonUploadErrorStays500(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc.mp4")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}

	meta := &youtube.VideoMetadata{ID: "abc", Title: "Video"}
	d := &stubDownloader{result: &youtube.DownloadResult{Path: path, Dir: dir}}
	u := &stubUploader{err: errors.New("open: no such file")}
	s := New(&stubResolver{meta: meta}, d, u, nil)

	rec := post(t, s.Router(), "/api/process", `{"url": "`+watchURL+`"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for a local upload error", rec.Code)
	}
}

func TestHealthAndIndex(t *testing.T) {
	s := New(&stubResolver{}, &stubDownloader{}, &stubUploader{}, nil)
	router := s.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/ status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ytfetch") {
		t.Errorf("index body = %s", rec.Body)
	}
}
