package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Log         LogConfig      `mapstructure:"log"`
	Postgres    PostgresConfig `mapstructure:"postgres"`
	Binance     BinanceConfig  `mapstructure:"binance"`
	Alerts      AlertsConfig   `mapstructure:"alerts"`
	Push        PushConfig     `mapstructure:"push"`
	Secrets     SecretsConfig  `mapstructure:"secrets"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
}

type BinanceConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	SpotBaseURL    string        `mapstructure:"spot_base_url"`
	FuturesBaseURL string        `mapstructure:"futures_base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CatalogTTL     time.Duration `mapstructure:"catalog_ttl"`
}

// WSConfig holds the upstream stream hosts. Spot ticker streams go through
// the explicit secure port, spot trade streams do not.
type WSConfig struct {
	SpotTickerURL string        `mapstructure:"spot_ticker_url"`
	SpotTradeURL  string        `mapstructure:"spot_trade_url"`
	FuturesURL    string        `mapstructure:"futures_url"`
	KeepAlive     time.Duration `mapstructure:"keep_alive"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
}

type AlertsConfig struct {
	BatchSize          int           `mapstructure:"batch_size"`
	FetchConcurrency   int           `mapstructure:"fetch_concurrency"`
	DailyCreateLimit   int           `mapstructure:"daily_create_limit"`
	WorkerDefaultLimit int           `mapstructure:"worker_default_limit"`
	WorkerMaxLimit     int           `mapstructure:"worker_max_limit"`
	CheckInterval      time.Duration `mapstructure:"check_interval"`
}

type PushConfig struct {
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	Subscriber      string `mapstructure:"subscriber"`
	TTL             int    `mapstructure:"ttl"`
	ClickURL        string `mapstructure:"click_url"`
}

// SecretsConfig holds the shared secrets. Each endpoint family has its own
// token; an empty token makes the family fail closed.
type SecretsConfig struct {
	AlertCheckToken  string `mapstructure:"alert_check_token"`
	AlertWorkerToken string `mapstructure:"alert_worker_token"`
	JWTSecret        string `mapstructure:"jwt_secret"`
}

type RedisConfig struct {
	Addr              string `mapstructure:"addr"`
	StreamOpensPerMin int    `mapstructure:"stream_opens_per_min"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "pricealerts")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 25)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("postgres.ssm.host", "PRICEALERTS_DB_HOST")
	v.SetDefault("postgres.ssm.user", "PRICEALERTS_DB_USER")
	v.SetDefault("postgres.ssm.password", "PRICEALERTS_DB_PASSWORD")

	v.SetDefault("binance.rest.spot_base_url", "https://api.binance.com")
	v.SetDefault("binance.rest.futures_base_url", "https://fapi.binance.com")
	v.SetDefault("binance.rest.timeout", 10*time.Second)
	v.SetDefault("binance.rest.catalog_ttl", 10*time.Minute)
	v.SetDefault("binance.ws.spot_ticker_url", "wss://stream.binance.com:9443/stream")
	v.SetDefault("binance.ws.spot_trade_url", "wss://stream.binance.com/stream")
	v.SetDefault("binance.ws.futures_url", "wss://fstream.binance.com/stream")
	v.SetDefault("binance.ws.keep_alive", 15*time.Second)
	v.SetDefault("binance.ws.dial_timeout", 10*time.Second)

	v.SetDefault("alerts.batch_size", 100)
	v.SetDefault("alerts.fetch_concurrency", 4)
	v.SetDefault("alerts.daily_create_limit", 5)
	v.SetDefault("alerts.worker_default_limit", 500)
	v.SetDefault("alerts.worker_max_limit", 1000)
	v.SetDefault("alerts.check_interval", time.Minute)

	v.SetDefault("push.vapid_public_key", "")
	v.SetDefault("push.vapid_private_key", "")
	v.SetDefault("push.subscriber", "mailto:alerts@example.com")
	v.SetDefault("push.ttl", 3600)
	v.SetDefault("push.click_url", "/alerts")

	v.SetDefault("secrets.alert_check_token", "")
	v.SetDefault("secrets.alert_worker_token", "")
	v.SetDefault("secrets.jwt_secret", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.stream_opens_per_min", 30)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "alerts.events")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "pricealerts")
}

// Load loads application configuration using Viper.
// It reads from the given yaml file (when present) and overrides with
// environment variables, e.g. SECRETS_ALERT_CHECK_TOKEN.
func Load(path string) (*Config, error) {
	// .env is optional; real environment wins over it
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Support environment variables with dot notation (e.g., BINANCE_WS_FUTURES_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Alerts.BatchSize <= 0 {
		return fmt.Errorf("alerts.batch_size must be positive, got %d", c.Alerts.BatchSize)
	}
	if c.Alerts.FetchConcurrency <= 0 {
		return fmt.Errorf("alerts.fetch_concurrency must be positive, got %d", c.Alerts.FetchConcurrency)
	}
	if c.Alerts.DailyCreateLimit <= 0 {
		return fmt.Errorf("alerts.daily_create_limit must be positive, got %d", c.Alerts.DailyCreateLimit)
	}
	if c.Alerts.WorkerDefaultLimit <= 0 || c.Alerts.WorkerMaxLimit < c.Alerts.WorkerDefaultLimit {
		return fmt.Errorf("alerts worker limits invalid: default=%d max=%d",
			c.Alerts.WorkerDefaultLimit, c.Alerts.WorkerMaxLimit)
	}
	return nil
}
