// Package config reads the process's environment-variable surface once at
// startup into a single Config struct, following the teacher's
// cmd/server/main.go convention of reading SERVER_ADDR directly rather than
// pulling in a config framework (spec §10).
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is every environment-supplied setting the core reads at startup.
// No other environment variable is load-bearing (spec §6).
type Config struct {
	// ServerAddr is the HTTP listen address for the request/status/list API.
	ServerAddr string

	// RedisAddr is the asynq broker address backing the bounded worker
	// pool of §5.
	RedisAddr string

	// DatabaseURL is the Postgres connection string for the persisted
	// catalog/run store. Empty means "use the in-memory store" — the
	// development/test default.
	DatabaseURL string

	// SolverBackendLicense is the MILP backend's license descriptor (spec
	// §6 "Environment"). Not validated here — the backend rejects it
	// itself at solve time; this repo only plumbs it through.
	SolverBackendLicense string

	// WorkerPoolSize is the number of concurrent solves the MILP backend
	// licenses, asynq.Config.Concurrency (spec §5, default 1).
	WorkerPoolSize int

	// QueueBound is the maximum number of pending runs before submit
	// returns 503 (spec §6 "Errors: ... 503 when the worker pool is
	// saturated beyond a configurable queue bound").
	QueueBound int

	// AppEnv selects the logger's dev/prod configuration split.
	AppEnv string
}

// Load reads Config from the environment, applying the defaults the
// teacher's main.go uses for SERVER_ADDR and reasonable defaults for the
// rest of the surface this spec adds.
func Load() (Config, error) {
	cfg := Config{
		ServerAddr:           getenv("SERVER_ADDR", ":8080"),
		RedisAddr:            getenv("REDIS_ADDR", "127.0.0.1:6379"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		SolverBackendLicense: os.Getenv("SOLVER_BACKEND_LICENSE"),
		AppEnv:               getenv("APP_ENV", "production"),
	}

	poolSize, err := getenvInt("WORKER_POOL_SIZE", 1)
	if err != nil {
		return Config{}, err
	}
	if poolSize < 1 {
		return Config{}, fmt.Errorf("WORKER_POOL_SIZE must be >= 1, got %d", poolSize)
	}
	cfg.WorkerPoolSize = poolSize

	queueBound, err := getenvInt("QUEUE_BOUND", 100)
	if err != nil {
		return Config{}, err
	}
	if queueBound < 1 {
		return Config{}, fmt.Errorf("QUEUE_BOUND must be >= 1, got %d", queueBound)
	}
	cfg.QueueBound = queueBound

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
