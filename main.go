// Command ytfetch serves YouTube metadata resolution and media processing
// over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ytfetch/config"
	httpx "ytfetch/http"
	"ytfetch/proxy"
	"ytfetch/server"
	"ytfetch/storage"
	"ytfetch/youtube"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	client := httpx.New(nil)

	proxies := &proxy.Manager{
		Forced:             cfg.ForcedProxy,
		Pool:               cfg.ProxyPool,
		AllowDirect:        cfg.AllowDirect,
		EnableFreeFallback: cfg.EnableFreeProxies,
		Client:             client,
		Logger:             logger,
	}

	engine := &youtube.YtdlpEngine{
		Path:       cfg.YtdlpPath,
		CookieFile: cfg.CookieFile,
	}

	chain := youtube.NewChain(engine, client)
	chain.InvidiousVerifyTLS = cfg.InvidiousVerifyTLS
	if cfg.APIKey != "" {
		chain.DataAPI = &youtube.DataAPIStrategy{APIKey: cfg.APIKey}
	}

	resolver := &youtube.Resolver{
		Proxies: proxies,
		Chain:   chain,
		Timeout: cfg.ResolveTimeout,
		Logger:  logger,
	}

	downloader := &youtube.Downloader{
		Engine:     engine,
		Client:     client,
		FFmpegPath: cfg.FFmpegPath,
		Logger:     logger,
	}

	uploader := &storage.Uploader{
		URL:    cfg.UploadURL,
		Folder: cfg.UploadFolder,
		Logger: logger,
	}

	srv := server.New(resolver, downloader, uploader, logger)

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
