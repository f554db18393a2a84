package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/vclip/vclip/internal/billing"
	"github.com/vclip/vclip/internal/config"
	"github.com/vclip/vclip/internal/filestore"
	"github.com/vclip/vclip/internal/quota"
	"github.com/vclip/vclip/internal/queue"
	"github.com/vclip/vclip/internal/store"
	"github.com/vclip/vclip/internal/wsgateway"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAPIConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.APIConfig) error {
	if cfg.Janitor.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Janitor.SentryDSN,
			Environment:      cfg.Janitor.Environment,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
		}); err != nil {
			return fmt.Errorf("sentry init: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConn)
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConn)
	st := store.New(db)

	var objects filestore.ObjectStore
	if cfg.ObjectStore.Backend == "file" {
		objects, err = filestore.OpenLocal(ctx, cfg.ObjectStore.LocalPath)
	} else {
		objects, err = filestore.OpenGCS(ctx, "gs://"+cfg.ObjectStore.Bucket)
	}
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	q, err := queue.Connect(ctx, cfg.NATS.URL, cfg.NATS.StreamReplicas)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer q.Close()

	qm := quota.NewManager(st)
	bm := billing.NewManager(st, cfg.Plans.WebhookSecret, cfg.Plans)

	clientTimeout, err := time.ParseDuration(cfg.WSGateway.ClientTimeout)
	if err != nil {
		return fmt.Errorf("parse WS_CLIENT_TIMEOUT: %w", err)
	}
	heartbeat, err := time.ParseDuration(cfg.WSGateway.HeartbeatInterval)
	if err != nil {
		return fmt.Errorf("parse WS_HEARTBEAT_INTERVAL: %w", err)
	}
	minJobInterval, err := time.ParseDuration(cfg.WSGateway.MinJobInterval)
	if err != nil {
		return fmt.Errorf("parse MIN_JOB_INTERVAL: %w", err)
	}

	gw := wsgateway.New(wsgateway.Config{
		JWTSecret:             cfg.JWTSecret,
		ClientTimeout:         clientTimeout,
		HeartbeatInterval:     heartbeat,
		SendBufferSize:        cfg.WSGateway.SendBufferSize,
		MaxConnectionsPerUser: cfg.WSGateway.MaxConnectionsPerUser,
		MinJobInterval:        minJobInterval,
	}, st, qm, q)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.Handle("/share/create", &createShareHandler{store: st})
	mux.Handle("/share/", &shareHandler{store: st, objects: objects})
	mux.Handle("/billing/webhook", &stripeWebhookHandler{billing: bm})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: cfg.Bind, Handler: mux}

	go func() {
		log.Info().Str("addr", cfg.Bind).Msg("vclip-api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("vclip-api: server exited")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
