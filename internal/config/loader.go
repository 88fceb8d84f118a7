package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("RIPTIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("riptide")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".riptide"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("resource.max_concurrent_renders", cfg.Resource.MaxConcurrentRenders)
	v.SetDefault("resource.max_concurrent_pdf", cfg.Resource.MaxConcurrentPDF)
	v.SetDefault("resource.memory_high_water_mb", cfg.Resource.MemoryHighWaterMB)
	v.SetDefault("resource.memory_check_interval", cfg.Resource.MemoryCheckInterval)
	v.SetDefault("resource.acquire_timeout", cfg.Resource.AcquireTimeout)

	v.SetDefault("rate_limit.requests_per_second", cfg.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)
	v.SetDefault("rate_limit.jitter_max", cfg.RateLimit.JitterMax)
	v.SetDefault("rate_limit.group_by_etld1", cfg.RateLimit.GroupByETLD1)

	v.SetDefault("browser_pool.min_warm", cfg.BrowserPool.MinWarm)
	v.SetDefault("browser_pool.max_instances", cfg.BrowserPool.MaxInstances)
	v.SetDefault("browser_pool.idle_timeout", cfg.BrowserPool.IdleTimeout)
	v.SetDefault("browser_pool.max_pages_per_tab", cfg.BrowserPool.MaxPagesPerTab)
	v.SetDefault("browser_pool.warmup_timeout", cfg.BrowserPool.WarmupTimeout)
	v.SetDefault("browser_pool.render_timeout", cfg.BrowserPool.RenderTimeout)
	v.SetDefault("browser_pool.max_lifetime", cfg.BrowserPool.MaxLifetime)
	v.SetDefault("browser_pool.min_pool_size", cfg.BrowserPool.MinPoolSize)

	v.SetDefault("pdf.max_size_mb", cfg.PDF.MaxSizeMB)
	v.SetDefault("pdf.extract_text", cfg.PDF.ExtractText)
	v.SetDefault("pdf.extract_images", cfg.PDF.ExtractImages)
	v.SetDefault("pdf.extract_tables", cfg.PDF.ExtractTables)
	v.SetDefault("pdf.extract_metadata", cfg.PDF.ExtractMeta)
	v.SetDefault("pdf.max_images", cfg.PDF.MaxImages)
	v.SetDefault("pdf.timeout", cfg.PDF.Timeout)

	v.SetDefault("analyzer.cache_size", cfg.Analyzer.CacheSize)
	v.SetDefault("analyzer.cache_ttl", cfg.Analyzer.CacheTTL)

	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)
	v.SetDefault("proxy.health_check", cfg.Proxy.HealthCheck)
	v.SetDefault("proxy.rotate_on_fail", cfg.Proxy.RotateOnFail)

	v.SetDefault("worker.pool_size", cfg.Worker.PoolSize)
	v.SetDefault("worker.max_retries_single", cfg.Worker.MaxRetriesSingle)
	v.SetDefault("worker.max_retries_batch", cfg.Worker.MaxRetriesBatch)
	v.SetDefault("worker.max_retries_pdf", cfg.Worker.MaxRetriesPDF)
	v.SetDefault("worker.max_retries_scheduled", cfg.Worker.MaxRetriesScheduled)

	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.mongo_uri", cfg.Cache.MongoURI)
	v.SetDefault("cache.mongo_database", cfg.Cache.MongoDB)

	v.SetDefault("idempotency.backend", cfg.Idempotency.Backend)
	v.SetDefault("idempotency.ttl", cfg.Idempotency.TTL)
	v.SetDefault("idempotency.cleanup_interval", cfg.Idempotency.CleanupInterval)
	v.SetDefault("idempotency.mongo_uri", cfg.Idempotency.MongoURI)
	v.SetDefault("idempotency.mongo_database", cfg.Idempotency.MongoDatabase)
	v.SetDefault("idempotency.mongo_collection", cfg.Idempotency.MongoCollection)

	v.SetDefault("streaming.initial_buffer_size", cfg.Streaming.InitialBufferSize)
	v.SetDefault("streaming.max_buffer_size", cfg.Streaming.MaxBufferSize)
	v.SetDefault("streaming.min_buffer_size", cfg.Streaming.MinBufferSize)
	v.SetDefault("streaming.growth_factor", cfg.Streaming.GrowthFactor)
	v.SetDefault("streaming.shrink_factor", cfg.Streaming.ShrinkFactor)
	v.SetDefault("streaming.slow_send_threshold", cfg.Streaming.SlowSendThreshold)
	v.SetDefault("streaming.max_slow_sends", cfg.Streaming.MaxSlowSends)
	v.SetDefault("streaming.backpressure_window", cfg.Streaming.BackpressureWindow)

	v.SetDefault("pipeline.fetch_timeout", cfg.Pipeline.FetchTimeout)
	v.SetDefault("pipeline.render_hard_cap", cfg.Pipeline.RenderHardCap)
	v.SetDefault("pipeline.pipeline_timeout", cfg.Pipeline.PipelineTimeout)
	v.SetDefault("pipeline.batch_concurrency", cfg.Pipeline.BatchConcurrency)
	v.SetDefault("pipeline.acquire_max_retries", cfg.Pipeline.AcquireMaxRetries)
	v.SetDefault("pipeline.fetch_max_retries", cfg.Pipeline.FetchMaxRetries)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
}
