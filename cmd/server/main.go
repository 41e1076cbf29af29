// Raspberry NAS Server
//
// Features:
// - Natural-language chat over an SMB share (list, count, search, create,
//   move, delete with confirmation, media and date filters)
// - Share connections registered once, passwords sealed at rest
// - Chat history in PostgreSQL or SQLite
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/api"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/assistant"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/auth"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/config"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/credentials"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/dispatch"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/logging"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metadata"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metrics"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/remote"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/storage/smb"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Raspberry NAS Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := metadata.Open(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logging.Fatal("migration failed", zap.Error(err))
	}

	sealer, err := credentials.NewSealer(cfg.EncryptionKey)
	if err != nil {
		logging.Fatal("credential sealer init failed", zap.Error(err))
	}

	client := smb.NewClient(remote.NewLocalExecutor(cfg.CommandTimeout))
	registry := credentials.NewRegistry(store, sealer, client)
	authHandler := auth.New(cfg.JWTSecret, cfg.TokenTTL)

	svc := assistant.New(nil, dispatch.New(client), registry, store, cfg.HistoryTimeout)
	defer svc.Close()

	srv := api.NewServer(svc, registry, client, authHandler, store, cfg.MaxRequestBytes, cfg.MaxUploadBytes)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.TLSEnabled() {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		return serve(metricsServer.ListenAndServe())
	})

	g.Go(func() error {
		if cfg.TLSEnabled() {
			logging.Info("server listening (TLS 1.3)",
				zap.String("addr", cfg.ListenAddr),
				zap.String("cert", cfg.TLSCertFile))
			return serve(httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile))
		}
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		return serve(httpServer.ListenAndServe())
	})

	// Periodic metrics update
	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				store.UpdateConnectionMetrics()
			}
		}
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(httpServer.Shutdown(sctx), metricsServer.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil {
		logging.Error("server error", zap.Error(err))
		svc.Close()
		store.Close()
		logging.Sync()
		os.Exit(1)
	}
	logging.Info("server stopped")
}

func serve(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
