package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-sync/internal/config"
	"github.com/weiawesome/wes-io-sync/internal/hub"
	"github.com/weiawesome/wes-io-sync/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-sync/pkg/log"
	"github.com/weiawesome/wes-io-sync/pkg/pubsub"
)

func main() {
	configFile := flag.String("config", "", "config file (default ./config/hub.yaml)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadHub(*configFile)
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "syncplay-hub"})
	logger := pkglog.L()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting syncplay-hub")

	tokens, err := jwt.NewManager(cfg.Auth.Secret, cfg.Auth.AccessDuration, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize token validation")
	}

	// Initialize PubSub; the none driver disables room events.
	ps, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize pubsub")
	}
	if ps != nil {
		defer ps.Close()
		logger.Info().Str("driver", cfg.PubSub.Driver).Msg("publishing room events")
	}

	roomHub := hub.New(cfg.WebSocket, hub.WithPublisher(ps))
	router := hub.NewRouter(hub.NewHandler(roomHub, tokens))

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("syncplay-hub listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down syncplay-hub")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	// Websocket connections are hijacked and outlive Shutdown.
	roomHub.Close()

	logger.Info().Msg("syncplay-hub stopped")
}
