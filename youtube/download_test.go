package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	httpx "ytfetch/http"
)

func TestInferExtension(t *testing.T) {
	tests := []struct {
		name    string
		stream  StreamDescriptor
		quality Quality
		want    string
	}{
		{"container webm", StreamDescriptor{Container: "webm"}, QualityBest, "webm"},
		{"container mp4 video", StreamDescriptor{Container: "mp4"}, QualityBest, "mp4"},
		{"container mp4 audio becomes m4a", StreamDescriptor{Container: "mp4"}, QualityAudio, "m4a"},
		{"unknown container video", StreamDescriptor{Container: "mystery"}, QualityBest, "mp4"},
		{"unknown container audio", StreamDescriptor{}, QualityAudio, "m4a"},
		{"opus", StreamDescriptor{Container: "opus"}, QualityAudio, "opus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferExtension(&tt.stream, tt.quality); got != tt.want {
				t.Errorf("inferExtension = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDownloadFromMirror(t *testing.T) {
	payload := []byte("fake media bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") == "" {
			t.Error("Referer not set on mirror request")
		}
		w.Write(payload)
	}))
	defer srv.Close()

	meta := &VideoMetadata{
		ID:             "dQw4w9WgXcQ",
		Title:          "Video",
		strategy:       "piped:test",
		mirrorType:     MirrorPiped,
		mirrorInstance: srv.URL,
		streams: StreamBag{
			VideoStreams: []MirrorStream{
				{URL: srv.URL + "/stream", QualityLabel: "720p", MimeType: "video/mp4"},
			},
		},
	}

	d := &Downloader{
		Engine:   &fakeEngine{},
		Client:   httpx.New(nil),
		TempRoot: t.TempDir(),
	}

	result, err := d.Download(context.Background(), meta, QualityBest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer os.RemoveAll(result.Dir)

	if result.Source != "piped:test" {
		t.Errorf("Source = %q, want the mirror strategy", result.Source)
	}
	got, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if string(got) != string(payload) {
		t.Error("downloaded bytes differ from served payload")
	}
	if filepath.Ext(result.Path) != ".mp4" {
		t.Errorf("path = %s, want .mp4 extension", result.Path)
	}
}

func TestDownloadEngineFallback(t *testing.T) {
	var engineCalled bool
	fake := &fakeEngine{
		downloadFn: func(_ context.Context, _ string, opts DownloadOptions) (string, error) {
			engineCalled = true
			path := filepath.Join(opts.OutputDir, "dQw4w9WgXcQ.mp4")
			if err := os.WriteFile(path, []byte("engine media"), 0o644); err != nil {
				return "", err
			}
			return path, nil
		},
	}

	// No mirror streams at all, so the engine is the only path.
	meta := &VideoMetadata{ID: "dQw4w9WgXcQ", Title: "Video", OriginalURL: testURL}

	d := &Downloader{Engine: fake, Client: httpx.New(nil), TempRoot: t.TempDir()}
	result, err := d.Download(context.Background(), meta, QualityBest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer os.RemoveAll(result.Dir)

	if !engineCalled {
		t.Fatal("engine never called")
	}
	if result.Source != "engine" {
		t.Errorf("Source = %q, want engine", result.Source)
	}
}

func TestDownloadMirrorRetryAfterEngineFailure(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		w.Write([]byte("media on retry"))
	}))
	defer srv.Close()

	meta := &VideoMetadata{
		ID:             "abc",
		Title:          "Video",
		strategy:       "piped:test",
		mirrorType:     MirrorPiped,
		mirrorInstance: srv.URL,
		OriginalURL:    testURL,
		streams: StreamBag{
			VideoStreams: []MirrorStream{{URL: srv.URL + "/stream", QualityLabel: "360p"}},
		},
	}

	fake := &fakeEngine{
		downloadFn: func(context.Context, string, DownloadOptions) (string, error) {
			return "", errors.New("engine down")
		},
	}

	d := &Downloader{Engine: fake, Client: httpx.New(nil), TempRoot: t.TempDir()}
	result, err := d.Download(context.Background(), meta, QualityBest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer os.RemoveAll(result.Dir)

	if hits != 2 {
		t.Errorf("mirror hit %d times, want initial attempt plus retry", hits)
	}
}

func TestDownloadTerminalFailure(t *testing.T) {
	fake := &fakeEngine{
		downloadFn: func(context.Context, string, DownloadOptions) (string, error) {
			return "", errors.New("engine down")
		},
	}
	meta := &VideoMetadata{ID: "abc", Title: "Video", OriginalURL: testURL}

	root := t.TempDir()
	d := &Downloader{Engine: fake, Client: httpx.New(nil), TempRoot: root}

	_, err := d.Download(context.Background(), meta, QualityBest)
	var derr *DownloadError
	if !errors.As(err, &derr) {
		t.Fatalf("error = %v, want *DownloadError", err)
	}
	if derr.Metadata == nil || derr.Metadata.Title != "Video" {
		t.Error("metadata not attached to download error")
	}

	// Working directory must be cleaned up on terminal failure.
	entries, readErr := os.ReadDir(root)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("temp root still has %d entries after failure", len(entries))
	}
}

func TestDownloadAudioDegradesWithoutTranscoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("opus audio bytes"))
	}))
	defer srv.Close()

	meta := &VideoMetadata{
		ID:             "abc",
		Title:          "Video",
		strategy:       "piped:test",
		mirrorType:     MirrorPiped,
		mirrorInstance: srv.URL,
		streams: StreamBag{
			AudioStreams: []MirrorStream{{URL: srv.URL + "/audio", Bitrate: 128000, MimeType: "audio/webm"}},
		},
	}

	d := &Downloader{
		Engine:     &fakeEngine{},
		Client:     httpx.New(nil),
		TempRoot:   t.TempDir(),
		FFmpegPath: "/nonexistent/ffmpeg",
	}

	result, err := d.Download(context.Background(), meta, QualityAudio)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer os.RemoveAll(result.Dir)

	if !result.Degraded {
		t.Error("result not marked degraded after transcoder failure")
	}
	if result.Transcoded {
		t.Error("result marked transcoded despite missing ffmpeg")
	}
	if filepath.Ext(result.Path) == ".mp3" {
		t.Errorf("path = %s, degraded download should keep the original container", result.Path)
	}
}
