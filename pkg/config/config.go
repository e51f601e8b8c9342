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
	Market struct {
		Symbol   string        `yaml:"symbol"`
		CoinID   string        `yaml:"coin_id"` // CoinGecko coin identifier
		Interval time.Duration `yaml:"interval"`
		Span     time.Duration `yaml:"span"` // historical range per training fetch
	} `yaml:"market"`
	Sources struct {
		Binance struct {
			BaseURL     string        `yaml:"base_url"`
			Interval    string        `yaml:"interval"`
			Timeout     time.Duration `yaml:"timeout"`
			MaxRequests int           `yaml:"max_requests"`
			Window      time.Duration `yaml:"window"`
		} `yaml:"binance"`
		CoinGecko struct {
			BaseURL     string        `yaml:"base_url"`
			Timeout     time.Duration `yaml:"timeout"`
			MaxRequests int           `yaml:"max_requests"`
			Window      time.Duration `yaml:"window"`
		} `yaml:"coingecko"`
		CacheTTL  time.Duration `yaml:"cache_ttl"`
		MinViable int           `yaml:"min_viable"`
	} `yaml:"sources"`
	Stream struct {
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		Cycle          time.Duration `yaml:"cycle"`
		BufferCap      int           `yaml:"buffer_cap"`
		AutoStart      bool          `yaml:"auto_start"`
	} `yaml:"stream"`
	Training struct {
		Queue     string        `yaml:"queue"` // memory (default) or redis
		Workers   int           `yaml:"workers"`
		QueueSize int           `yaml:"queue_size"`
		Bootstrap bool          `yaml:"bootstrap"` // full train at startup
		Artifacts string        `yaml:"artifacts"` // artifact directory
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"training"`
	Oracle struct {
		PublisherKey string        `yaml:"publisher_key"`
		OwnerKey     string        `yaml:"owner_key"`
		Validity     time.Duration `yaml:"validity"`
		PublishCycle time.Duration `yaml:"publish_cycle"`
	} `yaml:"oracle"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		ForecastTopic string   `yaml:"forecast_topic"`
		DecisionTopic string   `yaml:"decision_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		Producer      struct {
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
			Topic      string        `yaml:"topic"`
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
		Table            string        `yaml:"table"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
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
	if v := os.Getenv("MARKET_SYMBOL"); v != "" {
		c.Market.Symbol = v
	}
	if v := os.Getenv("STREAM_SYMBOLS"); v != "" {
		c.Stream.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ORACLE_PUBLISHER_KEY"); v != "" {
		c.Oracle.PublisherKey = v
	}
	if v := os.Getenv("ORACLE_OWNER_KEY"); v != "" {
		c.Oracle.OwnerKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if c.Oracle.PublisherKey == "" {
		return fmt.Errorf("oracle.publisher_key is required")
	}
	if c.Oracle.OwnerKey == "" {
		return fmt.Errorf("oracle.owner_key is required")
	}
	if c.Oracle.Validity < 0 || c.Oracle.Validity > time.Hour {
		return fmt.Errorf("oracle.validity must be within 1h, got %s", c.Oracle.Validity)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}
