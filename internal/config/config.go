// Package config centralizes the worker's configuration loading. The
// teacher repo re-parsed config/default.yaml inline in main() with errors
// "ignored for brevity"; here that's pulled into one typed loader so every
// binary shares the same precedence rules (YAML file, then environment
// overrides) instead of redefining anonymous structs per entrypoint.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

type NatsConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type AuditConfig struct {
	SpoolDir     string `yaml:"spool_dir"`
	MaxSpoolMB   int64  `yaml:"max_spool_mb"`
}

// PipelineConfig holds the tunables referenced throughout spec §4: tracker
// gating, re-id thresholds, and frame sampling.
type PipelineConfig struct {
	FrameSkip              int     `yaml:"frame_skip"`
	WorkerCount            int     `yaml:"worker_count"`
	QueueDepth             int     `yaml:"queue_depth"`
	DetectorModelDir       string  `yaml:"detector_model_dir"`
	DetectorNMSIoU         float64 `yaml:"detector_nms_iou"`
	TrackerMinHits         int     `yaml:"tracker_min_hits"`
	TrackerMaxAge          int     `yaml:"tracker_max_age"`
	TrackerIoUThreshold    float64 `yaml:"tracker_iou_threshold"`
	ReidStrongThreshold    float64 `yaml:"reid_strong_threshold"`
	ReidWeakThreshold      float64 `yaml:"reid_weak_threshold"`
	ReidEMAAlphaStrong     float64 `yaml:"reid_ema_alpha_strong"`
	ReidEMAAlphaWeak       float64 `yaml:"reid_ema_alpha_weak"`
	ReidMinPendingObserved int     `yaml:"reid_min_pending_observations"`
	ReidCacheSize          int     `yaml:"reid_cache_size"`
	EvidenceOutputDir      string  `yaml:"evidence_output_dir"`
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Nats     NatsConfig     `yaml:"nats"`
	Audit    AuditConfig    `yaml:"audit"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	MetricsAddr string      `yaml:"metrics_addr"`
}

func defaults() Config {
	return Config{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "herdvision", SSLMode: "disable"},
		Redis:    RedisConfig{Addr: "localhost:6379", Enabled: false},
		Nats:     NatsConfig{URL: "nats://localhost:4222", Enabled: false},
		Audit:    AuditConfig{SpoolDir: "./data/audit_spool", MaxSpoolMB: 1024},
		Pipeline: PipelineConfig{
			FrameSkip:              1,
			WorkerCount:            4,
			QueueDepth:             64,
			DetectorModelDir:       "./models",
			DetectorNMSIoU:         0.75,
			TrackerMinHits:         3,
			TrackerMaxAge:          30,
			TrackerIoUThreshold:    0.3,
			ReidStrongThreshold:    0.85,
			ReidWeakThreshold:      0.70,
			ReidEMAAlphaStrong:     0.10,
			ReidEMAAlphaWeak:       0.05,
			ReidMinPendingObserved: 1,
			ReidCacheSize:          4096,
			EvidenceOutputDir:      "./data/evidence",
		},
		MetricsAddr: ":9090",
	}
}

// Load reads path (if present) over the built-in defaults, then applies
// environment overrides. A missing file is not an error: defaults plus
// environment is a valid configuration for local runs.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", cfg.Redis.Enabled)

	cfg.Nats.URL = getEnv("NATS_URL", cfg.Nats.URL)
	cfg.Nats.Enabled = getEnvBool("NATS_ENABLED", cfg.Nats.Enabled)

	cfg.Audit.SpoolDir = getEnv("AUDIT_SPOOL_DIR", cfg.Audit.SpoolDir)

	cfg.Pipeline.FrameSkip = getEnvInt("PIPELINE_FRAME_SKIP", cfg.Pipeline.FrameSkip)
	cfg.Pipeline.WorkerCount = getEnvInt("PIPELINE_WORKER_COUNT", cfg.Pipeline.WorkerCount)
	cfg.Pipeline.DetectorModelDir = getEnv("PIPELINE_DETECTOR_MODEL_DIR", cfg.Pipeline.DetectorModelDir)
	cfg.Pipeline.EvidenceOutputDir = getEnv("PIPELINE_EVIDENCE_OUTPUT_DIR", cfg.Pipeline.EvidenceOutputDir)

	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
