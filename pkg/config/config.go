package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Analysis struct {
		SpikeThresholdPercent float64       `yaml:"spike_threshold_percent"`
		VolumeMultiplier      float64       `yaml:"volume_multiplier"`
		SMAWindowMinutes      int           `yaml:"sma_window_minutes"`
		EMAWindowMinutes      int           `yaml:"ema_window_minutes"`
		VolatilityThreshold   float64       `yaml:"volatility_threshold"`
		VolatilityLookback    int           `yaml:"volatility_lookback"`
		TrendHysteresis       float64       `yaml:"trend_hysteresis"`
		Interval              time.Duration `yaml:"interval"`
		OutOfOrderTolerance   time.Duration `yaml:"out_of_order_tolerance"`
		EvictionGraceCycles   int           `yaml:"eviction_grace_cycles"`
		MaxSymbols            int           `yaml:"max_symbols"`
		CycleWorkers          int           `yaml:"cycle_workers"`
		SeedSpan              time.Duration `yaml:"seed_span"`
		SeedLimit             int           `yaml:"seed_limit"`
	} `yaml:"analysis"`
	Dispatch struct {
		Backend       string        `yaml:"backend"` // gateway or kafka
		BufferSize    int           `yaml:"buffer_size"`
		MaxAttempts   int           `yaml:"max_attempts"`
		BackoffMin    time.Duration `yaml:"backoff_min"`
		BackoffMax    time.Duration `yaml:"backoff_max"`
		DrainTimeout  time.Duration `yaml:"drain_timeout"`
		SnapshotTopic string        `yaml:"snapshot_topic"`
		AlertTopic    string        `yaml:"alert_topic"`
	} `yaml:"dispatch"`
	Gateway struct {
		URL            string        `yaml:"url"`
		InternalSecret string        `yaml:"internal_secret"`
		Timeout        time.Duration `yaml:"timeout"`
	} `yaml:"gateway"`
	Stream struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		MaxRPS         int           `yaml:"max_rps"`
		BufferSize     int           `yaml:"buffer_size"`
	} `yaml:"stream"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		TicksTopic   string   `yaml:"ticks_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		Table            string        `yaml:"table"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		ActiveLookback   time.Duration `yaml:"active_lookback"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled    bool          `yaml:"enabled"`
		Addr       string        `yaml:"addr"`
		Password   string        `yaml:"password"`
		DB         int           `yaml:"db"`
		AlertTopic string        `yaml:"alert_topic"`
		LogTopic   string        `yaml:"log_topic"`
		CacheTTL   time.Duration `yaml:"cache_ttl"`
	} `yaml:"redis"`
	Archive struct {
		Enabled      bool          `yaml:"enabled"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
		BufferSize   int           `yaml:"buffer_size"`
	} `yaml:"archive"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("STREAM_API_KEY"); v != "" {
		c.Stream.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Stream.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("DISPATCH_BACKEND"); v != "" {
		c.Dispatch.Backend = v
	}
	if v := os.Getenv("GATEWAY_URL"); v != "" {
		c.Gateway.URL = v
	}
	if v := os.Getenv("INTERNAL_SECRET"); v != "" {
		c.Gateway.InternalSecret = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}

	return c, nil
}

// applyDefaults fills analysis parameters left unset. Values match the
// gateway's expectations for a freshly provisioned service.
func (c *Config) applyDefaults() {
	a := &c.Analysis
	if a.SpikeThresholdPercent == 0 {
		a.SpikeThresholdPercent = 5.0
	}
	if a.VolumeMultiplier == 0 {
		a.VolumeMultiplier = 3
	}
	if a.SMAWindowMinutes == 0 {
		a.SMAWindowMinutes = 5
	}
	if a.EMAWindowMinutes == 0 {
		a.EMAWindowMinutes = 15
	}
	if a.VolatilityThreshold == 0 {
		a.VolatilityThreshold = 2.0
	}
	if a.VolatilityLookback == 0 {
		a.VolatilityLookback = 20
	}
	if a.TrendHysteresis == 0 {
		a.TrendHysteresis = 0.05
	}
	if a.Interval == 0 {
		a.Interval = time.Minute
	}
	if a.OutOfOrderTolerance == 0 {
		a.OutOfOrderTolerance = 2 * time.Second
	}
	if a.EvictionGraceCycles == 0 {
		a.EvictionGraceCycles = 2
	}
	if a.MaxSymbols == 0 {
		a.MaxSymbols = 1000
	}
	if a.CycleWorkers == 0 {
		a.CycleWorkers = 8
	}
	if a.SeedSpan == 0 {
		a.SeedSpan = 15 * time.Minute
	}
	if a.SeedLimit == 0 {
		a.SeedLimit = 5000
	}
	if c.Redis.LogTopic == "" {
		c.Redis.LogTopic = "logs.aggregated"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Dispatch.Backend == "" {
		return fmt.Errorf("dispatch.backend is required")
	}
	if c.Dispatch.Backend != "gateway" && c.Dispatch.Backend != "kafka" {
		return fmt.Errorf("dispatch.backend must be 'gateway' or 'kafka', got '%s'", c.Dispatch.Backend)
	}
	if c.Dispatch.Backend == "gateway" && c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required for the gateway backend")
	}
	if c.Dispatch.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for the kafka backend")
	}
	if len(c.Stream.Symbols) == 0 {
		return fmt.Errorf("stream.symbols cannot be empty")
	}
	return nil
}
