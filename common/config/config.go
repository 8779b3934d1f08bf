package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all kernel configuration, loaded from environment
// variables.
type Config struct {
	Service   ServiceConfig
	DataStore DataStoreConfig
	Pool      PoolConfig
}

// ServiceConfig holds process-wide settings.
type ServiceConfig struct {
	Name      string
	LogLevel  string
	LogFormat string
}

// DataStoreConfig holds the Redis connection settings backing the
// DataStore (named queues + cache).
type DataStoreConfig struct {
	Host     string
	Port     int
	DB       int
	Password string
}

// PoolConfig holds the bounded worker pool sizes for the THREAD and
// PROCESS execution backends.
type PoolConfig struct {
	ThreadWorkers  int
	ProcessWorkers int
}

// Load loads configuration from environment variables.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:      serviceName,
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "text"),
		},
		DataStore: DataStoreConfig{
			Host:     getEnv("DATASTORE_HOST", "localhost"),
			Port:     getEnvInt("DATASTORE_PORT", 6379),
			DB:       getEnvInt("DATASTORE_DB", 0),
			Password: getEnv("DATASTORE_PASSWORD", ""),
		},
		Pool: PoolConfig{
			ThreadWorkers:  getEnvInt("POOL_THREAD_WORKERS", 10),
			ProcessWorkers: getEnvInt("POOL_PROCESS_WORKERS", 4),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks the loaded configuration for obviously invalid values.
func (c *Config) Validate() error {
	if c.DataStore.Host == "" {
		return fmt.Errorf("datastore host is required")
	}
	if c.Pool.ThreadWorkers < 1 {
		return fmt.Errorf("pool thread workers must be >= 1")
	}
	if c.Pool.ProcessWorkers < 1 {
		return fmt.Errorf("pool process workers must be >= 1")
	}
	return nil
}

// Addr returns the host:port pair for the Redis client.
func (c *DataStoreConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
