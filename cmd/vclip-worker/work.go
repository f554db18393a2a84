package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/vclip/vclip/internal/cache"
	"github.com/vclip/vclip/internal/config"
	"github.com/vclip/vclip/internal/detect"
	"github.com/vclip/vclip/internal/filestore"
	"github.com/vclip/vclip/internal/highlights"
	"github.com/vclip/vclip/internal/lock"
	"github.com/vclip/vclip/internal/media"
	"github.com/vclip/vclip/internal/pipeline"
	"github.com/vclip/vclip/internal/queue"
	"github.com/vclip/vclip/internal/quota"
	"github.com/vclip/vclip/internal/render"
	"github.com/vclip/vclip/internal/store"
	"github.com/vclip/vclip/internal/styles"
	"github.com/vclip/vclip/internal/types"
)

// claimTimeout bounds each idle poll against the queue so the worker
// fleet notices context cancellation promptly instead of blocking the
// full NATS fetch-wait.
const claimTimeout = 5 * time.Second

// detectionKeyframeInterval matches the decimator's forced-keyframe cadence
// to a conservative default tuned for 5fps-sampled scenes.
const detectionKeyframeInterval = 5

func newWorkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Run the worker fleet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWorkerConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return work(cmd.Context(), cfg)
		},
	}
}

func work(parent context.Context, cfg *config.WorkerConfig) error {
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

	coordinator, q, cleanup, err := buildCoordinator(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	group, gctx := errgroup.WithContext(ctx)
	for _, kind := range []types.JobKind{
		types.JobAnalyze, types.JobDownloadSource, types.JobReprocess, types.JobRenderSceneStyle,
	} {
		kind := kind
		consumer, err := q.NewConsumer(ctx, kind, cfg.ConsumerGroup, 5*time.Minute, 5)
		if err != nil {
			return fmt.Errorf("bind consumer for %s: %w", kind, err)
		}
		group.Go(func() error {
			return runConsumerLoop(gctx, consumer, coordinator)
		})
	}

	return group.Wait()
}

// runConsumerLoop claims and dispatches jobs for one kind until ctx is
// canceled, acking on success and nacking with a fixed delay on failure so
// JetStream's MaxDeliver policy governs eventual dead-lettering.
func runConsumerLoop(ctx context.Context, consumer *queue.Consumer, coordinator *pipeline.Coordinator) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := consumer.Claim(ctx, claimTimeout)
		if err != nil {
			log.Error().Err(err).Msg("worker: claim failed")
			continue
		}
		if msg == nil {
			continue // idle timeout
		}

		if err := coordinator.Dispatch(ctx, msg.Job); err != nil {
			log.Error().Err(err).Str("job_id", msg.Job.JobID).Str("kind", string(msg.Job.Kind)).
				Msg("worker: dispatch failed")
			if nackErr := msg.NackWithDelay(10 * time.Second); nackErr != nil {
				log.Error().Err(nackErr).Msg("worker: nack failed")
			}
			continue
		}
		if err := msg.Ack(); err != nil {
			log.Error().Err(err).Msg("worker: ack failed")
		}
	}
}

// buildCoordinator wires every dependency the pipeline needs:
// document store, object store, caches, detection engine, style registry,
// and the external collaborators (yt-dlp, ffmpeg, Gemini).
func buildCoordinator(ctx context.Context, cfg *config.WorkerConfig) (*pipeline.Coordinator, *queue.Queue, func(), error) {
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConn)
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConn)
	st := store.New(db)
	qm := quota.NewManager(st)

	var objects filestore.ObjectStore
	if cfg.ObjectStore.Backend == "file" {
		objects, err = filestore.OpenLocal(ctx, cfg.ObjectStore.LocalPath)
	} else {
		objects, err = filestore.OpenGCS(ctx, "gs://"+cfg.ObjectStore.Bucket)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open object store: %w", err)
	}

	q, err := queue.Connect(ctx, cfg.NATS.URL, cfg.NATS.StreamReplicas)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect nats: %w", err)
	}

	locks := lock.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	runner := render.NewRunner(cfg.MaxFFmpegProcesses)
	ytdlp := media.NewYtDlp(cfg.YtDlpPath)
	segmentExtractor := media.NewSegmentExtractor(ytdlp, runner)
	silence := media.NewSilenceRemover(runner)
	thumbnailer := media.NewThumbnailer(runner)
	frameSampler := media.NewFrameSampler(runner)

	sourceCache := cache.NewSourceCache(objects, st, locks, ytdlp, cfg.LocalCacheDir)
	rawSegCache := cache.NewRawSegmentCache(objects, locks, sourceCache, segmentExtractor, cfg.LocalCacheDir)
	neuralCache, err := cache.NewNeuralCache(objects, locks)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init neural cache: %w", err)
	}

	backend := detect.SelectBackend(nil, nil)
	engine := detect.NewEngine(backend, detect.NewCenterWeightedDetector(), detect.CanvasGenericFace, detectionKeyframeInterval)

	registry := styles.NewRegistry(
		styles.NewStreamerProcessor(runner),
		styles.NewSplitProcessor(runner),
		styles.NewIntelligentProcessor(frameSampler, engine, runner),
	)

	geminiTimeout, err := time.ParseDuration(cfg.Gemini.Timeout)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse GEMINI_TIMEOUT: %w", err)
	}
	highlightClient, err := highlights.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, geminiTimeout)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init gemini client: %w", err)
	}

	compiler := render.NewTopScenesEncoder(runner)

	coordinator := pipeline.NewCoordinator(
		st, qm, objects, q,
		sourceCache, rawSegCache, neuralCache,
		registry, highlightClient, thumbnailer, compiler, silence,
	)

	cleanup := func() {
		neuralCache.Close()
		q.Close()
	}
	return coordinator, q, cleanup, nil
}
