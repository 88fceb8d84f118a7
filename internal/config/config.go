package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for the extraction kernel.
type Config struct {
	Resource     ResourceConfig     `mapstructure:"resource"     yaml:"resource"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"   yaml:"rate_limit"`
	BrowserPool  BrowserPoolConfig  `mapstructure:"browser_pool" yaml:"browser_pool"`
	PDF          PDFConfig          `mapstructure:"pdf"          yaml:"pdf"`
	Analyzer     AnalyzerConfig     `mapstructure:"analyzer"     yaml:"analyzer"`
	Fetcher      FetcherConfig      `mapstructure:"fetcher"      yaml:"fetcher"`
	Proxy        ProxyConfig        `mapstructure:"proxy"        yaml:"proxy"`
	Worker       WorkerConfig       `mapstructure:"worker"       yaml:"worker"`
	Cache        CacheConfig        `mapstructure:"cache"        yaml:"cache"`
	Idempotency  IdempotencyConfig  `mapstructure:"idempotency"  yaml:"idempotency"`
	Streaming    StreamingConfig    `mapstructure:"streaming"    yaml:"streaming"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"     yaml:"pipeline"`
	Logging      LoggingConfig      `mapstructure:"logging"      yaml:"logging"`
	Server       ServerConfig       `mapstructure:"server"       yaml:"server"`
}

// ServerConfig controls the HTTP listener exposing the External
// Interfaces surface (spec §6.1-§6.4): sync/streaming submit, async job
// create/status, health and capabilities.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// PipelineConfig bounds the per-URL orchestrator state machine (spec
// §4.9): the fetch stage, the render-hard-cap Dynamic/Stealth can't
// exceed regardless of their own wait conditions, and the overall
// per-URL ceiling across every stage.
type PipelineConfig struct {
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"     yaml:"fetch_timeout"`
	RenderHardCap   time.Duration `mapstructure:"render_hard_cap"   yaml:"render_hard_cap"`
	PipelineTimeout time.Duration `mapstructure:"pipeline_timeout"  yaml:"pipeline_timeout"`
	BatchConcurrency int          `mapstructure:"batch_concurrency" yaml:"batch_concurrency"`

	// AcquireMaxRetries bounds how many times Acquiring re-tries after a
	// RateLimited admission failure, sleeping retry_after between
	// attempts (spec §4.9).
	AcquireMaxRetries int `mapstructure:"acquire_max_retries" yaml:"acquire_max_retries"`
	// FetchMaxRetries bounds how many times Fetching re-tries a
	// retryable (5xx/transport) fetch error with exponential backoff and
	// jitter (spec §4.9). Mirrors FetcherConfig.MaxRetries so the two
	// stay in step; set from it in buildApp rather than duplicated by
	// hand in config files.
	FetchMaxRetries int `mapstructure:"fetch_max_retries" yaml:"fetch_max_retries"`
}

// ResourceConfig bounds the Resource Manager's admission decisions
// (spec §4.1, §5).
type ResourceConfig struct {
	MaxConcurrentRenders int           `mapstructure:"max_concurrent_renders" yaml:"max_concurrent_renders"`
	MaxConcurrentPDF     int           `mapstructure:"max_concurrent_pdf"     yaml:"max_concurrent_pdf"`
	MemoryHighWaterMB    int           `mapstructure:"memory_high_water_mb"   yaml:"memory_high_water_mb"`
	MemoryCheckInterval  time.Duration `mapstructure:"memory_check_interval"  yaml:"memory_check_interval"`
	AcquireTimeout       time.Duration `mapstructure:"acquire_timeout"        yaml:"acquire_timeout"`
}

// RateLimitConfig controls the per-host token bucket (spec §4.3).
type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst"               yaml:"burst"`
	JitterMax         time.Duration `mapstructure:"jitter_max"          yaml:"jitter_max"`
	GroupByETLD1      bool          `mapstructure:"group_by_etld1"      yaml:"group_by_etld1"`
}

// BrowserPoolConfig sizes and times out the headless browser pool
// (spec §4.4).
type BrowserPoolConfig struct {
	MinWarm        int           `mapstructure:"min_warm"          yaml:"min_warm"`
	MaxInstances   int           `mapstructure:"max_instances"     yaml:"max_instances"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"      yaml:"idle_timeout"`
	MaxPagesPerTab int           `mapstructure:"max_pages_per_tab" yaml:"max_pages_per_tab"`
	WarmupTimeout  time.Duration `mapstructure:"warmup_timeout"    yaml:"warmup_timeout"`
	RenderTimeout  time.Duration `mapstructure:"render_timeout"    yaml:"render_timeout"`
	// MaxLifetime retires an instance once it has run this long,
	// regardless of page count or idle time (spec §4.2).
	MaxLifetime time.Duration `mapstructure:"max_lifetime" yaml:"max_lifetime"`
	// MinPoolSize is the floor SweepIdle will not retire instances below,
	// keeping the pool warm even during a quiet period.
	MinPoolSize int `mapstructure:"min_pool_size" yaml:"min_pool_size"`
}

// PDFConfig controls the PDF extractor (spec §4.8, grounded on the
// original pdf.rs settings).
type PDFConfig struct {
	MaxSizeMB      int64         `mapstructure:"max_size_mb"      yaml:"max_size_mb"`
	ExtractText    bool          `mapstructure:"extract_text"     yaml:"extract_text"`
	ExtractImages  bool          `mapstructure:"extract_images"   yaml:"extract_images"`
	ExtractTables  bool          `mapstructure:"extract_tables"   yaml:"extract_tables"`
	ExtractMeta    bool          `mapstructure:"extract_metadata" yaml:"extract_metadata"`
	MaxImages      int           `mapstructure:"max_images"       yaml:"max_images"`
	Timeout        time.Duration `mapstructure:"timeout"          yaml:"timeout"`
}

// AnalyzerConfig controls the Content Analyzer and Engine Selector's
// decision cache (spec §4.7).
type AnalyzerConfig struct {
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"  yaml:"cache_ttl"`
}

// FetcherConfig controls the HTTP fetch engine.
type FetcherConfig struct {
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"       yaml:"max_retries"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
}

// ProxyConfig controls proxy rotation for both the HTTP fetcher and the
// browser pool.
type ProxyConfig struct {
	Enabled      bool     `mapstructure:"enabled"        yaml:"enabled"`
	Rotation     string   `mapstructure:"rotation"       yaml:"rotation"`
	URLs         []string `mapstructure:"urls"           yaml:"urls"`
	HealthCheck  bool     `mapstructure:"health_check"   yaml:"health_check"`
	RotateOnFail bool     `mapstructure:"rotate_on_fail" yaml:"rotate_on_fail"`
}

// WorkerConfig sizes the async job pool (spec §6.3) and holds per-job-type
// retry budgets. The worker pool does not read the MaxRetries* fields; its
// per-kind attempt ceilings are fixed in the worker package.
type WorkerConfig struct {
	PoolSize              int `mapstructure:"pool_size"                 yaml:"pool_size"`
	MaxRetriesSingle      int `mapstructure:"max_retries_single"        yaml:"max_retries_single"`
	MaxRetriesBatch       int `mapstructure:"max_retries_batch"         yaml:"max_retries_batch"`
	MaxRetriesPDF         int `mapstructure:"max_retries_pdf"           yaml:"max_retries_pdf"`
	MaxRetriesScheduled   int `mapstructure:"max_retries_scheduled"     yaml:"max_retries_scheduled"`
}

// CacheConfig selects and sizes the Cache Port backend (spec §6.5).
type CacheConfig struct {
	Backend string        `mapstructure:"backend" yaml:"backend"` // "memory" or "mongo"
	TTL     time.Duration `mapstructure:"ttl"     yaml:"ttl"`
	MongoURI string       `mapstructure:"mongo_uri"      yaml:"mongo_uri"`
	MongoDB  string       `mapstructure:"mongo_database" yaml:"mongo_database"`
}

// IdempotencyConfig selects the Idempotency Store backend (spec §4.1,
// §6.5's companion port).
type IdempotencyConfig struct {
	Backend         string        `mapstructure:"backend"         yaml:"backend"` // "memory" or "mongo"
	TTL             time.Duration `mapstructure:"ttl"             yaml:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	MongoURI        string        `mapstructure:"mongo_uri"       yaml:"mongo_uri"`
	MongoDatabase   string        `mapstructure:"mongo_database"  yaml:"mongo_database"`
	MongoCollection string        `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// StreamingConfig tunes the backpressure buffer shared by NDJSON, SSE and
// WebSocket delivery (spec §4.10, grounded on the original buffer tests).
type StreamingConfig struct {
	InitialBufferSize   int           `mapstructure:"initial_buffer_size"   yaml:"initial_buffer_size"`
	MaxBufferSize       int           `mapstructure:"max_buffer_size"       yaml:"max_buffer_size"`
	MinBufferSize       int           `mapstructure:"min_buffer_size"       yaml:"min_buffer_size"`
	GrowthFactor        float64       `mapstructure:"growth_factor"         yaml:"growth_factor"`
	ShrinkFactor        float64       `mapstructure:"shrink_factor"         yaml:"shrink_factor"`
	SlowSendThreshold   time.Duration `mapstructure:"slow_send_threshold"   yaml:"slow_send_threshold"`
	MaxSlowSends        int           `mapstructure:"max_slow_sends"        yaml:"max_slow_sends"`
	BackpressureWindow  int           `mapstructure:"backpressure_window"   yaml:"backpressure_window"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DefaultConfig returns a Config with sensible defaults, mirroring the
// numbers spec.md fixes in §4 and §5.
func DefaultConfig() *Config {
	return &Config{
		Resource: ResourceConfig{
			MaxConcurrentRenders: 16,
			MaxConcurrentPDF:     2,
			MemoryHighWaterMB:    1536,
			MemoryCheckInterval:  5 * time.Second,
			AcquireTimeout:       10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 1.5,
			Burst:             1,
			JitterMax:         250 * time.Millisecond,
			GroupByETLD1:      false,
		},
		BrowserPool: BrowserPoolConfig{
			MinWarm:        5,
			MaxInstances:   20,
			IdleTimeout:    60 * time.Second,
			MaxPagesPerTab: 50,
			WarmupTimeout:  15 * time.Second,
			RenderTimeout:  30 * time.Second,
			MaxLifetime:    300 * time.Second,
			MinPoolSize:    2,
		},
		PDF: PDFConfig{
			MaxSizeMB:     100,
			ExtractText:   true,
			ExtractImages: false,
			ExtractTables: true,
			ExtractMeta:   true,
			MaxImages:     50,
			Timeout:       30 * time.Second,
		},
		Analyzer: AnalyzerConfig{
			CacheSize: 1024,
			CacheTTL:  time.Hour,
		},
		Fetcher: FetcherConfig{
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			RequestTimeout:  30 * time.Second,
			MaxRetries:      3,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Proxy: ProxyConfig{
			Enabled:      false,
			Rotation:     "round_robin",
			HealthCheck:  true,
			RotateOnFail: true,
		},
		Worker: WorkerConfig{
			PoolSize:            8,
			MaxRetriesSingle:    3,
			MaxRetriesBatch:     2,
			MaxRetriesPDF:       2,
			MaxRetriesScheduled: 1,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     24 * time.Hour,
		},
		Idempotency: IdempotencyConfig{
			Backend:         "memory",
			TTL:             10 * time.Minute,
			CleanupInterval: time.Minute,
			MongoDatabase:   "riptide",
			MongoCollection: "idempotency",
		},
		Streaming: StreamingConfig{
			InitialBufferSize:  256,
			MaxBufferSize:      4096,
			MinBufferSize:      32,
			GrowthFactor:       2.0,
			ShrinkFactor:       0.75,
			SlowSendThreshold:  100 * time.Millisecond,
			MaxSlowSends:       5,
			BackpressureWindow: 20,
		},
		Pipeline: PipelineConfig{
			FetchTimeout:      10 * time.Second,
			RenderHardCap:     3 * time.Second,
			PipelineTimeout:   30 * time.Second,
			BatchConcurrency:  8,
			AcquireMaxRetries: 2,
			FetchMaxRetries:   3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Server: ServerConfig{
			Addr: ":8080",
			// WriteTimeout is deliberately 0 (unbounded): the streaming
			// submit endpoint can legitimately hold a connection open for
			// as long as a large batch takes to drain, and http.Server
			// applies WriteTimeout per-connection regardless of handler.
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0,
			ShutdownTimeout: 15 * time.Second,
		},
	}
}
