// Package storage pushes finished media files to the upload backend.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	httpx "ytfetch/http"
	"ytfetch/retry"
)

const defaultUploadTimeout = 300 * time.Second

// UploadError reports a failed upload after retries were exhausted.
type UploadError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload to %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("upload to %s failed: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UploadError) Unwrap() error {
	return e.Err
}

// UploadResponse is the backend's answer to a successful upload.
type UploadResponse struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"status_code"`
	Response   json.RawMessage `json:"response"`
}

// Uploader sends files to the upload backend as multipart form data,
// retrying transient failures with backoff.
type Uploader struct {
	// URL is the upload endpoint.
	URL string

	// Folder is the folderName form field sent with every upload.
	Folder string

	// Timeout bounds one upload attempt. Defaults to 300 seconds.
	Timeout time.Duration

	// RetryConfig overrides the default retry behavior when non-nil.
	RetryConfig *retry.Config

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Upload sends the file at path to the backend and returns the decoded
// response. A missing endpoint configuration is an immediate error.
func (u *Uploader) Upload(ctx context.Context, path string) (*UploadResponse, error) {
	if u.URL == "" {
		return nil, errors.New("no upload endpoint configured")
	}

	cfg := retry.DefaultConfig()
	if u.RetryConfig != nil {
		cfg = *u.RetryConfig
	}

	var result *UploadResponse
	err := retry.Do(ctx, cfg, uploadErrorClassifier, func(ctx context.Context) error {
		resp, err := u.uploadOnce(ctx, path)
		if err != nil {
			u.logger().Warn("upload attempt failed", "file", filepath.Base(path), "error", err)
			return err
		}
		result = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.logger().Info("upload complete", "file", filepath.Base(path), "status", result.StatusCode)
	return result, nil
}

func (u *Uploader) uploadOnce(ctx context.Context, path string) (*UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read upload source: %w", err)
	}
	if u.Folder != "" {
		if err := writer.WriteField("folderName", u.Folder); err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	timeout := u.Timeout
	if timeout == 0 {
		timeout = defaultUploadTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, u.URL, &body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.httpClient().Do(req)
	if err != nil {
		return nil, &UploadError{URL: u.URL, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &UploadError{URL: u.URL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UploadError{
			URL:        u.URL,
			StatusCode: resp.StatusCode,
			Err:        &httpx.HTTPError{URL: u.URL, StatusCode: resp.StatusCode},
		}
	}

	result := &UploadResponse{Success: true, StatusCode: resp.StatusCode}
	if json.Valid(raw) {
		result.Response = json.RawMessage(raw)
	} else {
		quoted, _ := json.Marshal(string(raw))
		result.Response = quoted
	}
	return result, nil
}

func (u *Uploader) httpClient() *http.Client {
	if u.HTTPClient != nil {
		return u.HTTPClient
	}
	return http.DefaultClient
}

func (u *Uploader) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.Default()
}

// uploadErrorClassifier retries transient HTTP failures but gives up on
// client-side errors like a missing file.
func uploadErrorClassifier(err error) bool {
	var uerr *UploadError
	if errors.As(err, &uerr) {
		if uerr.StatusCode >= 400 && uerr.StatusCode < 500 {
			return false
		}
		return httpx.IsTransient(uerr.Err) || uerr.StatusCode >= 500
	}
	// Local filesystem and encoding errors are permanent.
	return false
}
