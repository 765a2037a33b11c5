// Package config manages application configuration.
//
// Configuration is resolved once at startup and treated as immutable for the
// process lifetime. Priority: env vars > config file > defaults.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int `json:"port"`

	// ForcedProxy is an operator override; when set it is always the first
	// proxy candidate tried.
	ForcedProxy string `json:"forced_proxy"`
	// ProxyPool is a static list of proxy URLs tried after ForcedProxy.
	ProxyPool []string `json:"proxy_pool"`
	// AllowDirect permits direct (proxyless) connections.
	AllowDirect bool `json:"allow_direct"`
	// EnableFreeProxies enables fetching one opportunistic proxy from
	// public proxy-list sources as the last candidate.
	EnableFreeProxies bool `json:"enable_free_proxies"`

	// InvidiousVerifyTLS controls TLS verification for Invidious mirrors.
	// Some mirrors run with broken certificate chains.
	InvidiousVerifyTLS bool `json:"invidious_verify_tls"`

	// YtdlpPath is the path to the yt-dlp executable.
	YtdlpPath string `json:"ytdlp_path"`
	// FFmpegPath is the path to the ffmpeg executable used for audio
	// transcoding.
	FFmpegPath string `json:"ffmpeg_path"`
	// CookieFile is the resolved Netscape cookie file path, or empty.
	CookieFile string `json:"cookie_file"`

	// UploadURL is the storage backend endpoint for /api/process uploads.
	UploadURL string `json:"upload_url"`
	// UploadFolder is the folder name sent with each upload.
	UploadFolder string `json:"upload_folder"`

	// APIKey is an optional YouTube Data API v3 key. When set, a Data API
	// lookup is appended to the extraction chain as a terminal fallback.
	APIKey string `json:"api_key"`

	// ResolveTimeout is the wall-clock budget for the whole extraction
	// chain. Zero disables the overall deadline, leaving only per-call
	// socket timeouts.
	ResolveTimeout time.Duration `json:"resolve_timeout"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:               4000,
		AllowDirect:        true,
		EnableFreeProxies:  true,
		InvidiousVerifyTLS: true,
		YtdlpPath:          "yt-dlp",
		FFmpegPath:         "ffmpeg",
		UploadURL:          "https://go.saffronstays.com/api/upload-file",
		UploadFolder:       "yt-videos",
		ResolveTimeout:     5 * time.Minute,
	}
}

// Load loads configuration from environment variables, config file, and
// applies defaults. Priority: env vars > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.resolveCookieFile(); err != nil {
		return nil, fmt.Errorf("resolve cookie file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load config from ytfetch.json in the current
// directory or the user config directory.
func (c *Config) loadFromFile() error {
	paths := []string{
		"ytfetch.json",
		filepath.Join(os.Getenv("HOME"), ".config", "ytfetch", "ytfetch.json"),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("YTDL_PROXY"); v != "" {
		c.ForcedProxy = v
	} else if v := os.Getenv("PROXY_URL"); v != "" {
		c.ForcedProxy = v
	}
	if v := os.Getenv("YTDL_PROXY_POOL"); v != "" {
		var pool []string
		for _, entry := range strings.Split(v, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				pool = append(pool, entry)
			}
		}
		c.ProxyPool = pool
	}
	if v := os.Getenv("YTDL_ALLOW_DIRECT"); v != "" {
		c.AllowDirect = v != "0"
	}
	if v := os.Getenv("YTDL_ENABLE_FREE_PROXIES"); v != "" {
		c.EnableFreeProxies = v != "0"
	}
	if v := os.Getenv("INVIDIOUS_VERIFY_TLS"); v != "" {
		switch strings.ToLower(v) {
		case "0", "false", "no":
			c.InvidiousVerifyTLS = false
		default:
			c.InvidiousVerifyTLS = true
		}
	}
	if v := os.Getenv("UPLOAD_API_URL"); v != "" {
		c.UploadURL = v
	}
	if v := os.Getenv("YTFETCH_UPLOAD_FOLDER"); v != "" {
		c.UploadFolder = v
	}
	if v := os.Getenv("YTFETCH_YTDLP_PATH"); v != "" {
		c.YtdlpPath = v
	}
	if v := os.Getenv("YTFETCH_FFMPEG_PATH"); v != "" {
		c.FFmpegPath = v
	}
	if v := os.Getenv("YTFETCH_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("YTFETCH_RESOLVE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ResolveTimeout = d
		}
	}
}

// resolveCookieFile resolves the cookie source once. Inline base64 cookies
// (YTDL_COOKIES_B64 or YTDL_COOKIES_INLINE) are written to a temp file; a
// plain file path (YTDL_COOKIES, default cookies.txt) is used when it exists.
func (c *Config) resolveCookieFile() error {
	inline := os.Getenv("YTDL_COOKIES_B64")
	if inline == "" {
		inline = os.Getenv("YTDL_COOKIES_INLINE")
	}
	if inline != "" {
		decoded, err := base64.StdEncoding.DecodeString(inline)
		if err != nil {
			return fmt.Errorf("decode inline cookies: %w", err)
		}
		path := filepath.Join(os.TempDir(), fmt.Sprintf("yt_cookies_%d.txt", os.Getpid()))
		if err := os.WriteFile(path, decoded, 0o600); err != nil {
			return fmt.Errorf("write cookie file: %w", err)
		}
		c.CookieFile = path
		return nil
	}

	path := os.Getenv("YTDL_COOKIES")
	if path == "" {
		path = "cookies.txt"
	}
	if _, err := os.Stat(path); err == nil {
		c.CookieFile = path
	}
	return nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.ResolveTimeout < 0 {
		return fmt.Errorf("resolve timeout must not be negative: %v", c.ResolveTimeout)
	}
	if c.UploadURL != "" {
		if _, err := url.Parse(c.UploadURL); err != nil {
			return fmt.Errorf("invalid upload url: %w", err)
		}
	}
	if c.YtdlpPath == "" {
		return fmt.Errorf("ytdlp path must not be empty")
	}
	return nil
}
