package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration
type Config struct {
	Port      int            `mapstructure:"port"`
	LogLevel  string         `mapstructure:"log_level"`
	LogFormat string         `mapstructure:"log_format"`
	Env       string         `mapstructure:"app_env"`
	Storage   StorageConfig  `mapstructure:"storage"`
	DB        DBConfig       `mapstructure:"db"`
	Kafka     KafkaConfig    `mapstructure:"kafka"`
	Outbox    OutboxConfig   `mapstructure:"outbox"`
	Workflow  WorkflowConfig `mapstructure:"workflow"`
}

// StorageConfig selects where the order collection is persisted
type StorageConfig struct {
	Driver     string `mapstructure:"driver"` // sqlite or postgres
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DBConfig holds the postgres configuration
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// KafkaConfig holds the order event transport settings
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	OrdersTopic   string   `mapstructure:"orders_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

// OutboxConfig tunes the outbox processor
type OutboxConfig struct {
	PollingInterval time.Duration `mapstructure:"polling_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	MaxRetries      int           `mapstructure:"max_retries"`
}

// WorkflowConfig tunes the stage engine
type WorkflowConfig struct {
	StrictGates bool `mapstructure:"strict_gates"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load reads config.yaml (optional) and environment variables such as
// PORT, LOG_LEVEL, STORAGE_DRIVER, DB_HOST or KAFKA_BROKERS.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("app_env", "development")

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.sqlite_path", "orders.db")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "orders")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.orders_topic", "order-events")
	v.SetDefault("kafka.consumer_group", "order-pipeline")

	v.SetDefault("outbox.polling_interval", 5*time.Second)
	v.SetDefault("outbox.batch_size", 10)
	v.SetDefault("outbox.max_retries", 3)

	v.SetDefault("workflow.strict_gates", false)
}

// Validate checks for configuration that cannot work
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path must not be empty")
		}
	case DriverPostgres:
		if c.DB.Host == "" || c.DB.Name == "" {
			return errors.New("db.host and db.name are required for postgres storage")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers must not be empty when kafka is enabled")
	}

	if c.Outbox.PollingInterval <= 0 {
		return errors.New("outbox.polling_interval must be positive")
	}

	if c.Outbox.BatchSize <= 0 {
		return errors.New("outbox.batch_size must be positive")
	}

	return nil
}

// GetDBConnString returns the driver-specific data source name
func (c *Config) GetDBConnString() string {
	if c.Storage.Driver == DriverSQLite {
		return c.Storage.SQLitePath
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
