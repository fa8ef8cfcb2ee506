package config

import (
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Scheduler parameter modes
const (
	ParamModeTimestamp = "timestamp"
	ParamModeCounter   = "counter"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// ServerConfig holds HTTP control API configuration
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SchedulerConfig holds the recurring launch configuration
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	JobName string `yaml:"job_name"`

	// ParamKey names the per-tick parameter; ParamMode is "timestamp" or "counter"
	ParamKey  string `yaml:"param_key"`
	ParamMode string `yaml:"param_mode"`
}

// JobsConfig holds per-job settings
type JobsConfig struct {
	CSVImport CSVImportConfig `yaml:"csv_import"`
}

// CSVImportConfig configures the CSV import job
type CSVImportConfig struct {
	SourcePath  string `yaml:"source_path"`
	LinesToSkip int    `yaml:"lines_to_skip"`
	Delimiter   string `yaml:"delimiter"`
	ChunkSize   int    `yaml:"chunk_size"`
}

// DelimiterRune returns the configured delimiter, ',' when unset
func (c CSVImportConfig) DelimiterRune() rune {
	if c.Delimiter == "" {
		return ','
	}
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// WorkerConfig holds the launch-request worker configuration
type WorkerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "0/10 * * * * *"
	}
	if c.Scheduler.JobName == "" {
		c.Scheduler.JobName = "testJob"
	}
	if c.Scheduler.ParamKey == "" {
		c.Scheduler.ParamKey = "time"
	}
	if c.Scheduler.ParamMode == "" {
		c.Scheduler.ParamMode = ParamModeTimestamp
	}
	if c.Jobs.CSVImport.ChunkSize == 0 {
		c.Jobs.CSVImport.ChunkSize = 10
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// ValidateDatabaseConfig checks the settings every binary needs to reach the execution store
func (c *Config) ValidateDatabaseConfig() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

// ValidateRabbitMQConfig checks the launch-request queue settings
func (c *Config) ValidateRabbitMQConfig() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

// ValidateServiceConfig checks everything the batch service needs
func (c *Config) ValidateServiceConfig() error {
	if err := c.ValidateDatabaseConfig(); err != nil {
		return err
	}

	if c.Server.Enabled && (c.Server.Port < MinPort || c.Server.Port > MaxPort) {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.JobName == "" {
			return fmt.Errorf("scheduler job_name is required")
		}
		if c.Scheduler.ParamMode != ParamModeTimestamp && c.Scheduler.ParamMode != ParamModeCounter {
			return fmt.Errorf("invalid scheduler param_mode: %q (must be %q or %q)", c.Scheduler.ParamMode, ParamModeTimestamp, ParamModeCounter)
		}
	}

	if c.Jobs.CSVImport.ChunkSize < 1 {
		return fmt.Errorf("csv_import chunk_size must be greater than 0")
	}

	if c.Jobs.CSVImport.LinesToSkip < 0 {
		return fmt.Errorf("csv_import lines_to_skip must not be negative")
	}

	if utf8.RuneCountInString(c.Jobs.CSVImport.Delimiter) > 1 {
		return fmt.Errorf("csv_import delimiter must be a single character")
	}

	if c.Worker.Enabled {
		return c.ValidateWorkerConfig()
	}

	return nil
}

// ValidateWorkerConfig checks the launch-request worker settings
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return c.ValidateRabbitMQConfig()
}
