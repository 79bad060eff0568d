package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
)

// Config holds concurrency defaults for batch runs. The per-batch
// concurrency argument always wins; this only supplies values for callers
// that want environment-driven defaults.
type Config struct {
	// MaxConcurrent is the default ceiling for simultaneously in-flight
	// scoring calls
	MaxConcurrent int

	// BreakerThreshold is the consecutive-failure count that opens the
	// endpoint circuit breaker
	BreakerThreshold int

	Source        ConfigSource
	IsKubernetes  bool
	EffectiveCPUs int
}

// LoadConfig loads concurrency configuration with priority: env vars >
// auto-detection
func LoadConfig() *Config {
	config := &Config{}

	config.IsKubernetes = isKubernetes()
	config.EffectiveCPUs = runtime.GOMAXPROCS(0)

	if maxConcurrent := getEnvInt("DAEDALUS_MAX_CONCURRENT", 0); maxConcurrent > 0 {
		config.MaxConcurrent = maxConcurrent
		config.Source = ConfigSourceEnvVar
	} else if multiplier := getEnvInt("DAEDALUS_CONCURRENCY_MULTIPLIER", 0); multiplier > 0 {
		config.MaxConcurrent = config.EffectiveCPUs * multiplier
		config.Source = ConfigSourceEnvVar
	} else {
		config.MaxConcurrent = defaultMaxConcurrent(config.IsKubernetes, config.EffectiveCPUs)
		config.Source = ConfigSourceAutoDetect
	}

	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}

	if threshold := getEnvInt("DAEDALUS_BREAKER_THRESHOLD", 0); threshold > 0 {
		config.BreakerThreshold = threshold
	} else {
		config.BreakerThreshold = 100
	}

	return config
}

// isKubernetes detects if the application is running in Kubernetes
func isKubernetes() bool {
	// Kubernetes sets this environment variable in all containers
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// defaultMaxConcurrent returns sensible defaults based on environment.
// Scoring calls are network-bound, so the ceiling is a multiple of CPUs;
// Kubernetes gets the conservative multiple.
func defaultMaxConcurrent(isK8s bool, cpus int) int {
	if isK8s {
		return cpus * 2
	}
	return cpus * 4
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{MaxConcurrent: %d, BreakerThreshold: %d, IsK8s: %t, CPUs: %d, Source: %s}",
		c.MaxConcurrent,
		c.BreakerThreshold,
		c.IsKubernetes,
		c.EffectiveCPUs,
		c.Source,
	)
}
