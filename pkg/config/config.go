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
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Definitions struct {
		// Declarative governance documents, validated at load time.
		Hypotheses  string `yaml:"hypotheses"`
		Constraints string `yaml:"constraints"`
		Universe    string `yaml:"universe"`
		Filters     string `yaml:"filters"`
		Factors     string `yaml:"factors"`
		Regime      string `yaml:"regime"`
	} `yaml:"definitions"`
	Resolver struct {
		CacheBackend string        `yaml:"cache_backend"` // memory or redis
		CacheTTL     time.Duration `yaml:"cache_ttl"`
	} `yaml:"resolver"`
	Monitor struct {
		Enabled         bool          `yaml:"enabled"`
		DefaultInterval time.Duration `yaml:"default_interval"`
		Tick            time.Duration `yaml:"tick"`
	} `yaml:"monitor"`
	Audit struct {
		Backend string `yaml:"backend"` // clickhouse or memory
	} `yaml:"audit"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
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
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Alerts struct {
		Sink       string   `yaml:"sink"` // kafka, webhook, or log
		Brokers    []string `yaml:"brokers"`
		Topic      string   `yaml:"topic"`
		WebhookURL string   `yaml:"webhook_url"`
	} `yaml:"alerts"`
	Regime struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
		Window   string        `yaml:"window"`
	} `yaml:"regime"`
	MetricFeed struct {
		Enabled        bool          `yaml:"enabled"`
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		Metrics        []string      `yaml:"metrics"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"metric_feed"`
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

	if v := os.Getenv("STRATGOV_AUDIT_BACKEND"); v != "" {
		c.Audit.Backend = v
	}
	if v := os.Getenv("STRATGOV_ALERT_SINK"); v != "" {
		c.Alerts.Sink = v
	}
	if v := os.Getenv("STRATGOV_ALERT_WEBHOOK_URL"); v != "" {
		c.Alerts.WebhookURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Alerts.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("METRIC_FEED_API_KEY"); v != "" {
		c.MetricFeed.APIKey = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Resolver.CacheBackend == "" {
		c.Resolver.CacheBackend = "memory"
	}
	if c.Resolver.CacheTTL == 0 {
		c.Resolver.CacheTTL = 30 * time.Second
	}
	if c.Monitor.DefaultInterval == 0 {
		c.Monitor.DefaultInterval = 24 * time.Hour
	}
	if c.Monitor.Tick == 0 {
		c.Monitor.Tick = time.Minute
	}
	if c.Audit.Backend == "" {
		c.Audit.Backend = "memory"
	}
	if c.Alerts.Sink == "" {
		c.Alerts.Sink = "log"
	}
	if c.Regime.Interval == 0 {
		c.Regime.Interval = 5 * time.Minute
	}
	if c.Regime.Window == "" {
		c.Regime.Window = "20d"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Audit.Backend != "clickhouse" && c.Audit.Backend != "memory" {
		return fmt.Errorf("audit.backend must be 'clickhouse' or 'memory', got '%s'", c.Audit.Backend)
	}
	if c.Audit.Backend == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when audit.backend is clickhouse")
	}
	if c.Resolver.CacheBackend != "memory" && c.Resolver.CacheBackend != "redis" {
		return fmt.Errorf("resolver.cache_backend must be 'memory' or 'redis', got '%s'", c.Resolver.CacheBackend)
	}
	if c.Resolver.CacheBackend == "redis" && c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required when resolver.cache_backend is redis")
	}
	if c.Alerts.Sink != "kafka" && c.Alerts.Sink != "webhook" && c.Alerts.Sink != "log" {
		return fmt.Errorf("alerts.sink must be 'kafka', 'webhook', or 'log', got '%s'", c.Alerts.Sink)
	}
	if c.Alerts.Sink == "kafka" {
		if len(c.Alerts.Brokers) == 0 {
			return fmt.Errorf("alerts.brokers cannot be empty when alerts.sink is kafka")
		}
		if c.Alerts.Topic == "" {
			return fmt.Errorf("alerts.topic is required when alerts.sink is kafka")
		}
	}
	if c.Alerts.Sink == "webhook" && c.Alerts.WebhookURL == "" {
		return fmt.Errorf("alerts.webhook_url is required when alerts.sink is webhook")
	}
	if c.Definitions.Hypotheses == "" {
		return fmt.Errorf("definitions.hypotheses is required")
	}
	if c.Definitions.Constraints == "" {
		return fmt.Errorf("definitions.constraints is required")
	}
	if c.Definitions.Universe == "" {
		return fmt.Errorf("definitions.universe is required")
	}
	if c.MetricFeed.Enabled && c.MetricFeed.WebSocketURL == "" {
		return fmt.Errorf("metric_feed.websocket_url is required when metric_feed.enabled")
	}
	return nil
}
