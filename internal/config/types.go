package config

import "time"

// Config holds all configuration for the scraping pipeline.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Store       StoreConfig       `yaml:"store"`
	Broker      BrokerConfig      `yaml:"broker"`
	Proxy       ProxyConfig       `yaml:"proxy"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Circuit     CircuitConfig     `yaml:"circuit"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	ListingStore ListingStoreConfig `yaml:"listing_store"`
	Sites       []SiteConfig      `yaml:"sites"`
	Engineering EngineeringConfig `yaml:"engineering"`
}

// StoreConfig configures the CoordinationStore (spec.md §4.2-§4.7).
type StoreConfig struct {
	Backend  string        `yaml:"backend"` // "redis" or "memory"
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// BrokerConfig configures the chord-pattern TaskBroker (spec.md §4.4).
type BrokerConfig struct {
	Backend       string        `yaml:"backend"` // "redis" or "memory"
	Address       string        `yaml:"address"`
	QueueKey      string        `yaml:"queue_key"`
	ConsumerGroup string        `yaml:"consumer_group"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	WorkerCount   int           `yaml:"worker_count"`
}

// ProxyConfig configures the proxy lifecycle engine and rotator
// (spec.md §4.6, §4.7).
type ProxyConfig struct {
	RawSourceCommand    string        `yaml:"raw_source_command"`
	LivenessProbeCommand string       `yaml:"liveness_probe_command"`
	JudgeURLs           []string      `yaml:"judge_urls"`
	RealIP              string        `yaml:"real_ip"`
	RefreshInterval     time.Duration `yaml:"refresh_interval"`
	ProbeTimeout        time.Duration `yaml:"probe_timeout"`
	ProbeConcurrency    int           `yaml:"probe_concurrency"`
	PublishPath         string        `yaml:"publish_path"`
	RotatorListenAddr   string        `yaml:"rotator_listen_addr"`
	RotationStrategy    string        `yaml:"rotation_strategy"` // random, round_robin, priority
	MaxConnsPerSecond   float64       `yaml:"max_conns_per_second"`
	MaxFailures         int           `yaml:"max_failures"`
	MinScore            float64       `yaml:"min_score"`
	Alpha               float64       `yaml:"alpha"`
	Beta                float64       `yaml:"beta"`
}

// RateLimitConfig configures the per-domain token bucket (spec.md §4.2).
type RateLimitConfig struct {
	DefaultCapacity        float64 `yaml:"default_capacity"`
	DefaultRefillPerSecond float64 `yaml:"default_refill_per_second"`
	PerDomain map[string]DomainRateLimit `yaml:"per_domain"`
}

// DomainRateLimit overrides the default bucket sizing for one domain.
type DomainRateLimit struct {
	Capacity        float64 `yaml:"capacity"`
	RefillPerSecond float64 `yaml:"refill_per_second"`
}

// CircuitConfig configures the per-domain circuit breaker (spec.md §4.3).
type CircuitConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	CooldownPeriod    time.Duration `yaml:"cooldown_period"`
	HalfOpenMaxProbes int           `yaml:"half_open_max_probes"`
}

// CheckpointConfig configures batched crash-recovery persistence
// (spec.md §4.11).
type CheckpointConfig struct {
	Directory     string        `yaml:"directory"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

// ListingStoreConfig configures the optional durable listing store
// (spec.md §4.12).
type ListingStoreConfig struct {
	Backend string `yaml:"backend"` // "memory" or "postgres"
	DSN     string `yaml:"dsn"`
}

// SiteConfig declares one real-estate site this pipeline knows how to
// dispatch and parse (spec.md §4.10).
type SiteConfig struct {
	Name         string   `yaml:"name"`
	SeedURLs     []string `yaml:"seed_urls"`
	Parser       string   `yaml:"parser"`
	MaxPerDomain int      `yaml:"max_per_domain"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FileOutput bool   `yaml:"file_output"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Theme      string `yaml:"theme"`
}

// EngineeringConfig holds development/debugging configuration.
type EngineeringConfig struct {
	ShowNerdStats bool     `yaml:"show_nerdstats"`
	MetricsAddr   string   `yaml:"metrics_addr"`
	EnablePprof   bool     `yaml:"enable_pprof"`
	TrustedCIDRs  []string `yaml:"trusted_cidrs"`
}
