package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	httpx "ytfetch/http"
)

const (
	defaultFFmpegPath    = "ffmpeg"
	streamCopyBufferSize = 1 << 20
	transcodeTimeout     = 5 * time.Minute
)

// containerExtensions maps stream containers to file extensions; anything
// unlisted falls through to the quality-class default.
var containerExtensions = map[string]string{
	"webm": "webm",
	"mp4":  "mp4",
	"m4a":  "m4a",
	"mp3":  "mp3",
	"3gpp": "3gp",
	"opus": "opus",
}

// DownloadResult describes one finished download.
type DownloadResult struct {
	// Path is the media file on disk. The caller owns it and Dir.
	Path string

	// Dir is the per-download working directory containing Path.
	Dir string

	Quality Quality

	// Transcoded reports that the audio was re-encoded to MP3.
	Transcoded bool

	// Degraded reports that MP3 transcoding failed and the original
	// container was kept instead.
	Degraded bool

	// Source names what produced the file: the mirror strategy or the
	// engine fallback.
	Source string
}

// Downloader turns a resolved record into a local media file. Mirror
// streams are tried first since they skip a second extraction round trip;
// the engine is the fallback, and the mirror gets one retry after an engine
// failure before the download is declared dead.
type Downloader struct {
	Engine Engine
	Client *httpx.Client

	// FFmpegPath is the transcoder binary. Defaults to "ffmpeg".
	FFmpegPath string

	// TempRoot is where per-download directories are created. Defaults to
	// the system temp dir.
	TempRoot string

	Logger *slog.Logger
}

// Download fetches the media for an already resolved record. On terminal
// failure the working directory is removed and a *DownloadError carrying the
// metadata is returned.
func (d *Downloader) Download(ctx context.Context, meta *VideoMetadata, quality Quality) (*DownloadResult, error) {
	root := d.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	workDir := filepath.Join(root, "yt_dl_"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	log := d.logger().With("video_id", meta.ID, "quality", string(quality))

	result, err := d.download(ctx, meta, quality, workDir, log)
	if err != nil {
		os.RemoveAll(workDir)
		return nil, &DownloadError{URL: meta.OriginalURL, Metadata: meta, Err: err}
	}
	result.Dir = workDir
	result.Quality = quality
	return result, nil
}

func (d *Downloader) download(ctx context.Context, meta *VideoMetadata, quality Quality, workDir string, log *slog.Logger) (*DownloadResult, error) {
	stream := SelectStream(meta, quality)

	var mirrorErr error
	if stream != nil {
		result, err := d.fromMirror(ctx, meta, stream, quality, workDir)
		if err == nil {
			log.Info("downloaded from mirror", "instance", meta.mirrorInstance)
			return result, nil
		}
		mirrorErr = err
		log.Warn("mirror download failed", "instance", meta.mirrorInstance, "error", err)
	}

	path, engineErr := d.Engine.Download(ctx, meta.OriginalURL, DownloadOptions{
		Proxy:     meta.proxyUsed.URL(),
		Quality:   quality,
		OutputDir: workDir,
	})
	if engineErr == nil {
		if err := checkNonEmpty(path); err != nil {
			return nil, err
		}
		log.Info("downloaded via engine")
		return &DownloadResult{Path: path, Source: "engine"}, nil
	}
	log.Warn("engine download failed", "error", engineErr)

	// One mirror retry; transient stream URL failures often clear.
	if stream != nil {
		result, err := d.fromMirror(ctx, meta, stream, quality, workDir)
		if err == nil {
			log.Info("downloaded from mirror on retry", "instance", meta.mirrorInstance)
			return result, nil
		}
		mirrorErr = err
	}

	if mirrorErr != nil {
		return nil, fmt.Errorf("mirror: %w; engine: %v", mirrorErr, engineErr)
	}
	return nil, engineErr
}

// fromMirror streams the selected rendition to disk and, for audio,
// transcodes to MP3.
func (d *Downloader) fromMirror(ctx context.Context, meta *VideoMetadata, stream *StreamDescriptor, quality Quality, workDir string) (*DownloadResult, error) {
	ext := inferExtension(stream, quality)
	dst := filepath.Join(workDir, meta.ID+"."+ext)

	if err := d.fetchStream(ctx, meta, stream, dst); err != nil {
		os.Remove(dst)
		return nil, err
	}
	if err := checkNonEmpty(dst); err != nil {
		os.Remove(dst)
		return nil, err
	}

	result := &DownloadResult{Path: dst, Source: meta.strategy}
	if quality == QualityAudio && ext != "mp3" {
		mp3Path, err := d.transcodeToMP3(ctx, dst)
		if err != nil {
			// Keep the original container rather than failing the job.
			d.logger().Warn("transcode failed, keeping original audio", "error", err)
			result.Degraded = true
			return result, nil
		}
		result.Path = mp3Path
		result.Transcoded = true
	}
	return result, nil
}

func (d *Downloader) fetchStream(ctx context.Context, meta *VideoMetadata, stream *StreamDescriptor, dst string) error {
	opts := httpx.RequestOptions{
		// Stream bodies can take arbitrarily long; the header timeout
		// still bounds a stalled connection.
		Timeout: -1,
		Referer: meta.mirrorInstance,
	}
	if stream.MirrorType == MirrorInvidious {
		opts.Proxy = meta.proxyUsed.URL()
		opts.InsecureTLS = !meta.verifyTLS
	}

	resp, err := d.Client.Get(ctx, stream.URL, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return &httpx.HTTPError{URL: stream.URL, StatusCode: resp.StatusCode}
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer f.Close()

	buf := make([]byte, streamCopyBufferSize)
	if _, err := io.CopyBuffer(f, resp.Body, buf); err != nil {
		return fmt.Errorf("stream copy: %w", err)
	}
	return f.Close()
}

// transcodeToMP3 re-encodes src to a 192k MP3 next to it and removes the
// original on success.
func (d *Downloader) transcodeToMP3(ctx context.Context, src string) (string, error) {
	dst := strings.TrimSuffix(src, filepath.Ext(src)) + ".mp3"

	cmdCtx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, d.ffmpegPath(),
		"-y", "-i", src, "-vn", "-ar", "44100", "-ac", "2", "-b:a", "192k", dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("ffmpeg: %w: %s", err, lastLine(string(out)))
	}
	if err := checkNonEmpty(dst); err != nil {
		return "", err
	}
	os.Remove(src)
	return dst, nil
}

func (d *Downloader) ffmpegPath() string {
	if d.FFmpegPath != "" {
		return d.FFmpegPath
	}
	return defaultFFmpegPath
}

func (d *Downloader) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// inferExtension picks a file extension for a mirror stream from its
// container or mime subtype, defaulting per quality class.
func inferExtension(stream *StreamDescriptor, quality Quality) string {
	if ext, ok := containerExtensions[strings.ToLower(stream.Container)]; ok {
		if quality == QualityAudio && ext == "mp4" {
			return "m4a"
		}
		return ext
	}
	if quality == QualityAudio {
		return "m4a"
	}
	return "mp4"
}

func checkNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat download: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("download produced empty file")
	}
	return nil
}
