package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/pawfect-live/internal/config"
	"github.com/weiawesome/pawfect-live/internal/handler"
	"github.com/weiawesome/pawfect-live/internal/hub"
	"github.com/weiawesome/pawfect-live/internal/identity"
	"github.com/weiawesome/pawfect-live/internal/kafka"
	"github.com/weiawesome/pawfect-live/internal/livestatus"
	"github.com/weiawesome/pawfect-live/internal/service"
	"github.com/weiawesome/pawfect-live/pkg/jwt"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
	"github.com/weiawesome/pawfect-live/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	cfg.Log.ServiceName = "signal-hub"
	pkglog.Init(cfg.Log)
	logger := pkglog.L().With().Str(pkglog.FieldInstance, cfg.Server.InstanceID).Logger()

	if !cfg.Log.Pretty {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting signal-hub")

	// Initialize PubSub
	ps, err := pubsub.NewPubSub(cfg.PubSub.Config)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize pubsub")
	}
	defer ps.Close()
	logger.Info().Str("driver", cfg.PubSub.Driver).Str("channel", cfg.PubSub.Channel).Msg("pubsub ready")

	bridge := livestatus.NewBridge(ps, cfg.PubSub.Channel, cfg.Server.InstanceID)

	// Initialize Kafka producer for broadcast events
	var kafkaProducer kafka.BroadcastEventProducer
	if cfg.Kafka.Enabled() {
		cp, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Server.InstanceID)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, broadcast events disabled")
		} else {
			kafkaProducer = cp
			defer cp.Close()
			logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
		}
	}

	// Identity tokens are optional; without a secret every client joins
	// with the identity it claims or as a guest.
	provider := identity.NewProvider(nil)
	if cfg.Auth.JWTSecret != "" {
		tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, 0)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create token verifier")
		}
		provider = identity.NewProvider(tokens)
	} else {
		logger.Warn().Msg("auth.jwt_secret not set, identity tokens are rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run(ctx)

	// Initialize service
	signalSvc := service.NewSignalService(wsHub, kafkaProducer, bridge, service.Options{
		SweepInterval:      cfg.Room.SweepInterval,
		GracePeriod:        cfg.Room.GracePeriod,
		ParticipantTimeout: cfg.Room.ParticipantTimeout,
		InstanceID:         cfg.Server.InstanceID,
	})
	go func() {
		if err := signalSvc.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("signal service exited")
		}
	}()
	go bridge.Run(ctx, signalSvc.ApplyRemoteLiveStatus)

	// Initialize handlers
	wsHandler := handler.NewWSHandler(wsHub, signalSvc)
	httpHandler := handler.NewHandler(wsHandler, signalSvc, provider, cfg.WebRTC.ICEServers)
	router := handler.NewRouter(logger, httpHandler)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("signal-hub listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down signal-hub")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	cancel()
	<-bridge.Done()

	logger.Info().Msg("signal-hub stopped")
}
