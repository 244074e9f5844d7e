package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultFileWriteDelay = 150 * time.Millisecond // Small delay to ensure file write is complete
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:     "memory",
			Address:     "localhost:6379",
			DialTimeout: 5 * time.Second,
		},
		Broker: BrokerConfig{
			Backend:           "memory",
			Address:           "localhost:6379",
			QueueKey:          "scrapecore:jobs",
			ConsumerGroup:     "workers",
			VisibilityTimeout: 30 * time.Second,
			WorkerCount:       8,
		},
		Proxy: ProxyConfig{
			JudgeURLs:         []string{"https://httpbin.org/ip"},
			RefreshInterval:   15 * time.Minute,
			ProbeTimeout:      8 * time.Second,
			ProbeConcurrency:  32,
			PublishPath:       "./data/live_proxies.json",
			RotatorListenAddr: "127.0.0.1:8899",
			RotationStrategy:  "priority",
			MaxConnsPerSecond: 50,
			MaxFailures:       5,
			MinScore:          0.2,
			Alpha:             1.2,
			Beta:              0.6,
		},
		RateLimit: RateLimitConfig{
			DefaultCapacity:        5,
			DefaultRefillPerSecond: 0.5,
		},
		Circuit: CircuitConfig{
			FailureThreshold:  5,
			CooldownPeriod:    30 * time.Second,
			HalfOpenMaxProbes: 1,
		},
		Checkpoint: CheckpointConfig{
			Directory:     "./data/checkpoints",
			FlushInterval: 5 * time.Second,
			BatchSize:     50,
		},
		ListingStore: ListingStoreConfig{
			Backend: "memory",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "pretty",
			Output:     "stdout",
			FileOutput: true,
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Theme:      "default",
		},
		Engineering: EngineeringConfig{
			MetricsAddr: ":9090",
		},
	}
}

// Load loads configuration from file and environment variables, following
// the same override precedence as the styled logger's config: file values
// first, then SCRAPECORE_-prefixed environment variables on top.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("SCRAPECORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("SCRAPECORE_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // ignore multiple rapid changes
			}
			lastReload = now

			// looks like on some platforms this event fires before the
			// file write is flushed to disk
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return cfg, nil
}
