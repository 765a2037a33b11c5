// Package server exposes the resolution and processing pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ytfetch/storage"
	"ytfetch/youtube"
)

// resolver, downloader, and uploader are the pipeline seams; the concrete
// types live in youtube and storage.
type resolver interface {
	Resolve(ctx context.Context, rawURL string) (*youtube.VideoMetadata, error)
}

type downloader interface {
	Download(ctx context.Context, meta *youtube.VideoMetadata, quality youtube.Quality) (*youtube.DownloadResult, error)
}

type uploader interface {
	Upload(ctx context.Context, path string) (*storage.UploadResponse, error)
}

// Server routes HTTP requests into the pipeline.
type Server struct {
	Resolver   resolver
	Downloader downloader
	Uploader   uploader
	Logger     *slog.Logger
}

// New creates a server over the given pipeline components.
func New(r resolver, d downloader, u uploader, logger *slog.Logger) *Server {
	return &Server{Resolver: r, Downloader: d, Uploader: u, Logger: logger}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Post("/api/metadata", s.handleMetadata)
	r.Post("/api/process", s.handleProcess)
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "ytfetch",
		"endpoints": []string{
			"POST /api/metadata",
			"POST /api/process",
			"GET /health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type metadataRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing or invalid url")
		return
	}
	if _, err := youtube.ParseQuality(req.Quality); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta, err := s.Resolver.Resolve(r.Context(), req.URL)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"metadata": meta,
	})
}

type processRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

type processResponse struct {
	Success        bool                    `json:"success"`
	Metadata       *youtube.VideoMetadata  `json:"metadata"`
	UploadResponse *storage.UploadResponse `json:"upload_response,omitempty"`
	Transcoded     bool                    `json:"transcoded,omitempty"`
	Degraded       bool                    `json:"degraded,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing or invalid url")
		return
	}

	// Quality is validated before any network work happens.
	quality, err := youtube.ParseQuality(req.Quality)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta, err := s.Resolver.Resolve(r.Context(), req.URL)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	result, err := s.Downloader.Download(r.Context(), meta, quality)
	if err != nil {
		var derr *youtube.DownloadError
		if errors.As(err, &derr) {
			writeJSON(w, http.StatusInternalServerError, processResponse{
				Metadata: derr.Metadata,
				Error:    derr.Error(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer s.cleanup(result)

	uploadResp, err := s.Uploader.Upload(r.Context(), result.Path)
	if err != nil {
		s.logger().Error("upload failed", "file", result.Path, "error", err)
		// Upstream storage failures are a gateway problem, not ours.
		status := http.StatusInternalServerError
		var uerr *storage.UploadError
		if errors.As(err, &uerr) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, processResponse{
			Metadata: meta,
			Error:    err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		Success:        true,
		Metadata:       meta,
		UploadResponse: uploadResp,
		Transcoded:     result.Transcoded,
		Degraded:       result.Degraded,
	})
}

func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	var verr *youtube.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	}

	var exhausted *youtube.ExhaustedError
	if errors.As(err, &exhausted) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success":  false,
			"error":    exhausted.Error(),
			"attempts": len(exhausted.Attempts),
		})
		return
	}

	s.logger().Error("resolution failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// cleanup removes the finished download and its working directory.
func (s *Server) cleanup(result *youtube.DownloadResult) {
	if err := os.RemoveAll(result.Dir); err != nil {
		s.logger().Warn("temp dir cleanup failed", "dir", result.Dir, "error", err)
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
