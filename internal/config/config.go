// Package config loads process-wide configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all Yantra service configuration, read once at startup.
type Config struct {
	// HTTP
	Port string

	// Database
	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabaseSSLMode  string

	// Redis broker
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Queue names
	JobQueueName   string
	BuildQueueName string

	// File staging
	JobsDir          string
	SandboxMountPath string
	MaxUploadFiles   int
	MaxUploadBytes   int64
	AllowedExts      map[string]bool

	// Sandbox
	BuildTimeout     time.Duration
	ContainerRuntime string

	// Rate limiting
	SubmitRatePerSec float64
	SubmitRateBurst  int

	// Worker
	PollInterval    time.Duration
	ReconcileGrace  time.Duration
	JobDirRetention time.Duration
	SweepInterval   time.Duration
}

// DefaultAllowedExtensions is the upload extension whitelist.
var DefaultAllowedExtensions = []string{
	".txt", ".json", ".csv", ".xml", ".yaml", ".yml", ".md", ".dat", ".log",
	".tsv", ".ini", ".conf", ".properties", ".sql", ".html", ".css", ".js",
}

// Load reads configuration from the environment. A missing .env file is not
// an error; system environment variables always apply.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8000"),
		DatabaseHost:     getEnv("DATABASE_HOST", "localhost"),
		DatabasePort:     getEnvInt("DATABASE_PORT", 5432),
		DatabaseUser:     getEnv("DATABASE_USER", "admin"),
		DatabasePassword: getEnv("DATABASE_PASSWORD", "admin"),
		DatabaseName:     getEnv("DATABASE_NAME", "yantra_db"),
		DatabaseSSLMode:  getEnv("DATABASE_SSLMODE", "disable"),
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnvInt("REDIS_PORT", 6379),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		JobQueueName:     getEnv("JOB_QUEUE_NAME", "job_queue"),
		BuildQueueName:   getEnv("BUILD_QUEUE_NAME", "build_queue"),
		JobsDir:          getEnv("EXECUTOR_JOBS_DIR", "/tmp/executor_jobs"),
		SandboxMountPath: getEnv("SANDBOX_MOUNT_PATH", "/data"),
		MaxUploadFiles:   getEnvInt("MAX_UPLOAD_FILES", 10),
		MaxUploadBytes:   getEnvInt64("MAX_UPLOAD_BYTES", 25*1024*1024),
		BuildTimeout:     getEnvDuration("BUILD_TIMEOUT", 600*time.Second),
		ContainerRuntime: getEnv("CONTAINER_RUNTIME", "runsc"),
		SubmitRatePerSec: getEnvFloat("SUBMIT_RATE_PER_SEC", 5),
		SubmitRateBurst:  getEnvInt("SUBMIT_RATE_BURST", 10),
		PollInterval:     getEnvDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		ReconcileGrace:   getEnvDuration("RECONCILE_GRACE", 5*time.Minute),
		JobDirRetention:  getEnvDuration("JOB_DIR_RETENTION", time.Hour),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
	}

	cfg.AllowedExts = make(map[string]bool)
	for _, ext := range extensionsFromEnv() {
		cfg.AllowedExts[ext] = true
	}

	return cfg
}

func extensionsFromEnv() []string {
	raw := os.Getenv("ALLOWED_EXTENSIONS")
	if raw == "" {
		return DefaultAllowedExtensions
	}
	var exts []string
	for _, e := range strings.Split(raw, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return exts
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
