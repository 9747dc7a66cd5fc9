package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Endpoint string `mapstructure:"ENDPOINT"`
		Protocol string `mapstructure:"PROTOCOL"` // http | grpc
		Insecure bool   `mapstructure:"INSECURE"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Consul struct {
		Addr          string `mapstructure:"ADDR"`
		ServiceHost   string `mapstructure:"SERVICE_HOST"`
		CheckInterval string `mapstructure:"CHECK_INTERVAL"`
	} `mapstructure:"CONSUL"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Path           string `mapstructure:"PATH"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Scheduler struct {
		Interval    time.Duration `mapstructure:"INTERVAL"`
		Concurrency int           `mapstructure:"CONCURRENCY"`
		RunTimeout  time.Duration `mapstructure:"RUN_TIMEOUT"`
	} `mapstructure:"SCHEDULER"`
	Analysis struct {
		Provider string `mapstructure:"PROVIDER"` // openai | ollama
		Model    string `mapstructure:"MODEL"`
		BaseURL  string `mapstructure:"BASE_URL"`
	} `mapstructure:"ANALYSIS"`
	Snapshot struct {
		Endpoint string        `mapstructure:"ENDPOINT"`
		Timeout  time.Duration `mapstructure:"TIMEOUT"`
		Archive  bool          `mapstructure:"ARCHIVE"`
	} `mapstructure:"SNAPSHOT"`
	Notify struct {
		Mode       string `mapstructure:"MODE"` // log | queue
		WebhookURL string `mapstructure:"WEBHOOK_URL"`
		Queue      string `mapstructure:"QUEUE"`
	} `mapstructure:"NOTIFY"`
	Credentials struct {
		Backend    string `mapstructure:"BACKEND"` // db | vault
		VaultMount string `mapstructure:"VAULT_MOUNT"`
		VaultPath  string `mapstructure:"VAULT_PATH"`
	} `mapstructure:"CREDENTIALS"`
	Vault struct {
		Addr  string `mapstructure:"ADDR"`
		Token string `mapstructure:"TOKEN"`
	} `mapstructure:"VAULT"`
	SecretKey string `mapstructure:"SECRET_KEY"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "pagewatch")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("OTEL.PROTOCOL", "http")
	v.SetDefault("CONSUL.SERVICE_HOST", "127.0.0.1")
	v.SetDefault("CONSUL.CHECK_INTERVAL", "10s")
	v.SetDefault("DATABASE.TYPE", "sqlite")
	v.SetDefault("DATABASE.PATH", "pagewatch.db")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("MINIO.BUCKET_NAME", "pagewatch-snapshots")
	v.SetDefault("SCHEDULER.INTERVAL", time.Minute)
	v.SetDefault("SCHEDULER.CONCURRENCY", 1)
	v.SetDefault("SCHEDULER.RUN_TIMEOUT", 2*time.Minute)
	v.SetDefault("ANALYSIS.PROVIDER", "openai")
	v.SetDefault("SNAPSHOT.TIMEOUT", 45*time.Second)
	v.SetDefault("NOTIFY.MODE", "log")
	v.SetDefault("NOTIFY.QUEUE", "notifications")
	v.SetDefault("CREDENTIALS.BACKEND", "db")
	v.SetDefault("CREDENTIALS.VAULT_MOUNT", "secret")
	v.SetDefault("CREDENTIALS.VAULT_PATH", "pagewatch/credentials")
}

// LoadConfig reads ./config.yaml (optional) and overlays environment variables,
// e.g. SCHEDULER_INTERVAL=30s.
func LoadConfig() (*Config, error) {
	return load(viper.New(), ".")
}

func load(v *viper.Viper, paths ...string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

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
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.TLS.Enable && (c.TLS.CertPath == "" || c.TLS.KeyPath == "") {
		return fmt.Errorf("TLS.CERT_PATH and TLS.KEY_PATH are required when TLS is enabled")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("SCHEDULER.INTERVAL must be positive")
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("SCHEDULER.CONCURRENCY must be at least 1")
	}
	switch c.Otel.Protocol {
	case "http", "grpc":
	default:
		return fmt.Errorf("OTEL.PROTOCOL %q is not supported", c.Otel.Protocol)
	}
	switch c.Analysis.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("ANALYSIS.PROVIDER %q is not supported", c.Analysis.Provider)
	}
	switch c.Notify.Mode {
	case "log", "queue":
	default:
		return fmt.Errorf("NOTIFY.MODE %q is not supported", c.Notify.Mode)
	}
	switch c.Credentials.Backend {
	case "db", "vault":
	default:
		return fmt.Errorf("CREDENTIALS.BACKEND %q is not supported", c.Credentials.Backend)
	}
	return nil
}
