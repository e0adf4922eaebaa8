package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/herdvision/internal/audit"
	"github.com/technosupport/herdvision/internal/config"
	"github.com/technosupport/herdvision/internal/data"
	"github.com/technosupport/herdvision/internal/detector"
	"github.com/technosupport/herdvision/internal/evidence"
	"github.com/technosupport/herdvision/internal/metrics"
	"github.com/technosupport/herdvision/internal/pipeline"
	"github.com/technosupport/herdvision/internal/reid"
	"github.com/technosupport/herdvision/internal/tracker"
	"github.com/technosupport/herdvision/internal/verifier"
)

func main() {
	// 1. Config
	cfg, err := config.Load(getEnv("CONFIG_PATH", "config/default.yaml"))
	if err != nil {
		log.Fatalf("[Worker] config load error: %v", err)
	}

	log.Printf("[Worker] Starting - DB: %s, Workers: %d, FrameSkip: %d",
		cfg.Database.Host, cfg.Pipeline.WorkerCount, cfg.Pipeline.FrameSkip)

	// 2. DB Init
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("[Worker] DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("[Worker] DB ping error: %v", err)
	}

	// 3. Audit Service (append-only, spool-backed)
	auditService := audit.NewService(db)
	audit.ConfigureFailover(cfg.Audit.SpoolDir, cfg.Audit.MaxSpoolMB)
	auditService.StartReplayer(context.Background())

	// 4. Redis (optional: backs the Re-ID cross-process animal lock)
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("[Worker] Redis unavailable (%v), falling back to in-process locking", err)
			rdb = nil
		}
	}
	reidLocker := reid.NewLocker(rdb)

	// 5. NATS (optional: publishes job/identity events for out-of-scope surfaces)
	var publisher pipeline.Publisher
	if cfg.Nats.Enabled {
		nc, err := nats.Connect(cfg.Nats.URL, nats.Name("herdvision-pipeline-worker"))
		if err != nil {
			log.Printf("[Worker] NATS connection failed: %v (publishing disabled)", err)
		} else {
			defer nc.Close()
			publisher = &natsPublisher{nc: nc}
			log.Printf("[Worker] NATS connected: %s", cfg.Nats.URL)
		}
	}

	// 6. Repositories
	videoJobs := data.VideoJobModel{DB: db}
	animals := data.AnimalModel{DB: db}
	biometrics := data.BiometricModel{DB: db}
	detections := data.DetectionModel{DB: db}
	events := data.EventModel{DB: db}

	// 7. Detector (hot-reloadable model directory)
	detectorCfg := detector.DefaultConfig()
	detectorCfg.NMSIoUThresh = cfg.Pipeline.DetectorNMSIoU
	detectorStore := detector.NewStore(detectorCfg, func() detector.Config {
		return detectorCfg
	})
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	detectorStore.WatchDir(watchCtx, cfg.Pipeline.DetectorModelDir)

	// 8. Tracker / Re-ID / Verifier / Evidence configs
	trackerCfg := tracker.Config{
		MinHits:      cfg.Pipeline.TrackerMinHits,
		MaxAge:       cfg.Pipeline.TrackerMaxAge,
		IoUThreshold: cfg.Pipeline.TrackerIoUThreshold,
	}
	reidCfg := reid.Config{
		StrongThreshold:    cfg.Pipeline.ReidStrongThreshold,
		WeakThreshold:      cfg.Pipeline.ReidWeakThreshold,
		EMAAlphaStrong:     cfg.Pipeline.ReidEMAAlphaStrong,
		EMAAlphaWeak:       cfg.Pipeline.ReidEMAAlphaWeak,
		MinPendingObserved: cfg.Pipeline.ReidMinPendingObserved,
		HotCacheSize:       cfg.Pipeline.ReidCacheSize,
	}
	verifierSvc := verifier.New(verifier.DefaultConfig())
	evidenceGen := evidence.New(cfg.Pipeline.EvidenceOutputDir)

	// 9. Orchestrator + Scheduler
	orch := pipeline.New(pipeline.Deps{
		Config: pipeline.Config{
			FrameSkip:           cfg.Pipeline.FrameSkip,
			ProgressUpdateEvery: 50,
			MaxEvidenceFrames:   5,
			MaxEvidenceBytes:    50 * 1024 * 1024,
		},
		VideoJobs:     videoJobs,
		Animals:       animals,
		Biometrics:    biometrics,
		Detections:    detections,
		Events:        events,
		Audit:         auditService,
		DetectorStore: detectorStore,
		TrackerConfig: trackerCfg,
		ReidConfig:    reidCfg,
		ReidLocker:    reidLocker,
		Verifier:      verifierSvc,
		Evidence:      evidenceGen,
		Publisher:     publisher,
	})

	scheduler := pipeline.NewScheduler(pipeline.SchedulerConfig{
		WorkerPoolSize: cfg.Pipeline.WorkerCount,
	}, orch, videoJobs)
	scheduler.Start()
	defer scheduler.Stop()

	metrics.SetServiceUp(true)
	go startMetricsServer(cfg.MetricsAddr)

	// 10. Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("[Worker] shutting down")
	metrics.SetServiceUp(false)
}

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	log.Printf("[Worker] metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Printf("[Worker] metrics server failed: %v", err)
	}
}

// natsPublisher adapts *nats.Conn to pipeline.Publisher.
type natsPublisher struct {
	nc *nats.Conn
}

func (p *natsPublisher) Publish(subject string, payload []byte) error {
	return p.nc.Publish(subject, payload)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
