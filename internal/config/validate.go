package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Resource.MaxConcurrentRenders < 1 {
		return fmt.Errorf("resource.max_concurrent_renders must be >= 1, got %d", cfg.Resource.MaxConcurrentRenders)
	}
	if cfg.Resource.MaxConcurrentPDF < 1 {
		return fmt.Errorf("resource.max_concurrent_pdf must be >= 1, got %d", cfg.Resource.MaxConcurrentPDF)
	}
	if cfg.Resource.MemoryHighWaterMB < 1 {
		return fmt.Errorf("resource.memory_high_water_mb must be >= 1")
	}
	if cfg.Resource.AcquireTimeout <= 0 {
		return fmt.Errorf("resource.acquire_timeout must be > 0")
	}

	if cfg.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be > 0")
	}
	if cfg.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be >= 1")
	}

	if cfg.BrowserPool.MaxInstances < cfg.BrowserPool.MinWarm {
		return fmt.Errorf("browser_pool.max_instances (%d) must be >= min_warm (%d)", cfg.BrowserPool.MaxInstances, cfg.BrowserPool.MinWarm)
	}
	if cfg.BrowserPool.MaxPagesPerTab < 1 {
		return fmt.Errorf("browser_pool.max_pages_per_tab must be >= 1")
	}
	if cfg.BrowserPool.MinPoolSize > cfg.BrowserPool.MinWarm {
		return fmt.Errorf("browser_pool.min_pool_size (%d) must be <= min_warm (%d)", cfg.BrowserPool.MinPoolSize, cfg.BrowserPool.MinWarm)
	}

	if cfg.PDF.MaxSizeMB <= 0 {
		return fmt.Errorf("pdf.max_size_mb must be > 0")
	}
	if cfg.PDF.MaxImages < 0 {
		return fmt.Errorf("pdf.max_images must be >= 0")
	}

	if cfg.Analyzer.CacheSize < 1 {
		return fmt.Errorf("analyzer.cache_size must be >= 1")
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries must be >= 0")
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Worker.PoolSize < 1 {
		return fmt.Errorf("worker.pool_size must be >= 1")
	}

	validBackends := map[string]bool{"memory": true, "mongo": true}
	if !validBackends[cfg.Cache.Backend] {
		return fmt.Errorf("cache.backend must be 'memory' or 'mongo', got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "mongo" && cfg.Cache.MongoURI == "" {
		return fmt.Errorf("cache.mongo_uri is required when cache.backend is 'mongo'")
	}
	if !validBackends[cfg.Idempotency.Backend] {
		return fmt.Errorf("idempotency.backend must be 'memory' or 'mongo', got %q", cfg.Idempotency.Backend)
	}

	if cfg.Streaming.MinBufferSize < 1 || cfg.Streaming.MinBufferSize > cfg.Streaming.MaxBufferSize {
		return fmt.Errorf("streaming.min_buffer_size must be >= 1 and <= max_buffer_size")
	}
	if cfg.Streaming.InitialBufferSize < cfg.Streaming.MinBufferSize || cfg.Streaming.InitialBufferSize > cfg.Streaming.MaxBufferSize {
		return fmt.Errorf("streaming.initial_buffer_size must be within [min_buffer_size, max_buffer_size]")
	}
	if cfg.Streaming.GrowthFactor <= 1.0 {
		return fmt.Errorf("streaming.growth_factor must be > 1.0")
	}
	if cfg.Streaming.ShrinkFactor <= 0 || cfg.Streaming.ShrinkFactor >= 1.0 {
		return fmt.Errorf("streaming.shrink_factor must be in (0, 1.0)")
	}

	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if cfg.Server.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout must be >= 0")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

// ValidateURL checks if a URL string is valid for extraction.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
