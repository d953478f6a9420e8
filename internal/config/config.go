package config

import (
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/gdfit/internal/optimization"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		// Fit jobs allowed to run at the same time; others wait
		WorkerCount int `env:"OPT_WORKER_COUNT" envDefault:"10"`
		// Upper bound on samples accepted per request
		MaxSamples int `env:"OPT_MAX_SAMPLES" envDefault:"100000"`
		// Finished fits kept for status queries; the oldest are evicted first
		MaxRetainedFits int `env:"OPT_MAX_RETAINED_FITS" envDefault:"1000"`
	}
	Fit struct {
		LearningRate         float64 `env:"FIT_LEARNING_RATE" envDefault:"0.01"`
		MaxIterations        int     `env:"FIT_MAX_ITERATIONS" envDefault:"1000"`
		Tolerance            float64 `env:"FIT_TOLERANCE" envDefault:"1e-5"`
		BatchSize            int     `env:"FIT_BATCH_SIZE" envDefault:"32"`
		RandomSeed           int64   `env:"FIT_RANDOM_SEED" envDefault:"0"`
		PropagateConvergence bool    `env:"FIT_PROPAGATE_CONVERGENCE" envDefault:"false"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		}
	}

	if cfg.Optimization.WorkerCount < 1 {
		cfg.Optimization.WorkerCount = 1
	}
	if cfg.Optimization.MaxRetainedFits < 1 {
		cfg.Optimization.MaxRetainedFits = 1
	}

	return cfg, nil
}

// Hyperparameters returns the configured fit defaults. Request values
// override them field by field.
func (c *Config) Hyperparameters() optimization.Hyperparameters {
	return optimization.Hyperparameters{
		LearningRate:         c.Fit.LearningRate,
		MaxIterations:        c.Fit.MaxIterations,
		Tolerance:            c.Fit.Tolerance,
		BatchSize:            c.Fit.BatchSize,
		RandomSeed:           c.Fit.RandomSeed,
		PropagateConvergence: c.Fit.PropagateConvergence,
	}
}

// GetEnv returns the value of the environment variable or the default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt returns the value of the environment variable as int or the default value
func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsBool returns the value of the environment variable as bool or the default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
