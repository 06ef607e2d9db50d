// Package config загружает настройки сервера и клиента.
//
// Порядок применения: значения по умолчанию, затем YAML файл (если задан),
// затем переменные окружения. Флаги командной строки применяются поверх в cmd.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/ingest/pkg/ingest"
)

// Config - все настройки приложения.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Admin  AdminConfig  `yaml:"admin"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig - настройки TCP сервера.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxConnections  int           `yaml:"max_connections"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
	MaxRequestSize  int           `yaml:"max_request_size"`
}

// ClientConfig - настройки клиента и политики переподключения.
type ClientConfig struct {
	Addr                 string        `yaml:"addr"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	ReconnectEnabled     bool          `yaml:"reconnect_enabled"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
}

// AdminConfig - HTTP listener для /metrics, /healthz и /records.
// Пустой Addr отключает его.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig - настройки логгирования.
type LogConfig struct {
	Level  string `yaml:"level"`  // info, debug1, debug2, debug3
	Format string `yaml:"format"` // text или json
	File   string `yaml:"file"`   // путь к журналу, пустой - только stderr
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	defaultAddr := net.JoinHostPort(ingest.DefaultHost, ingest.DefaultPort)
	return &Config{
		Server: ServerConfig{
			Addr:            ":" + ingest.DefaultPort,
			ReadTimeout:     ingest.DefaultReadTimeout,
			WriteTimeout:    ingest.DefaultWriteTimeout,
			GracefulTimeout: ingest.DefaultGracefulTimeout,
			MaxRequestSize:  ingest.DefaultMaxLineSize,
		},
		Client: ClientConfig{
			Addr:                 defaultAddr,
			ConnectTimeout:       ingest.DefaultConnectTimeout,
			ReadTimeout:          ingest.DefaultReadTimeout,
			WriteTimeout:         ingest.DefaultWriteTimeout,
			ReconnectEnabled:     true,
			MaxReconnectAttempts: ingest.DefaultMaxReconnectAttempts,
			ReconnectBaseDelay:   ingest.DefaultReconnectBaseDelay,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load читает настройки. path может быть пустым - тогда файл не читается.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Server.Addr = getEnvOrDefault("INGEST_ADDR", cfg.Server.Addr)
	cfg.Client.Addr = getEnvOrDefault("INGEST_SERVER", cfg.Client.Addr)
	cfg.Admin.Addr = getEnvOrDefault("INGEST_ADMIN_ADDR", cfg.Admin.Addr)
	cfg.Log.Level = getEnvOrDefault("INGEST_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnvOrDefault("INGEST_LOG_FILE", cfg.Log.File)
	cfg.Server.MaxConnections = getEnvAsIntOrDefault("INGEST_MAX_CONNECTIONS", cfg.Server.MaxConnections)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate проверяет корректность настроек.
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.addr: %w", err))
	}
	if _, _, err := net.SplitHostPort(c.Client.Addr); err != nil {
		errs = append(errs, fmt.Errorf("client.addr: %w", err))
	}
	if c.Admin.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Admin.Addr); err != nil {
			errs = append(errs, fmt.Errorf("admin.addr: %w", err))
		}
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("server.max_connections must be >= 0, got %d", c.Server.MaxConnections))
	}
	if c.Server.GracefulTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.graceful_timeout must be >= 0, got %v", c.Server.GracefulTimeout))
	}
	if c.Client.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("client.max_reconnect_attempts must be >= 0, got %d", c.Client.MaxReconnectAttempts))
	}
	if c.Client.ReconnectBaseDelay < 0 {
		errs = append(errs, fmt.Errorf("client.reconnect_base_delay must be >= 0, got %v", c.Client.ReconnectBaseDelay))
	}
	if _, err := ingest.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// LogLevel возвращает уровень логирования библиотеки. Validate гарантирует корректность.
func (c *Config) LogLevel() ingest.LogLevel {
	level, _ := ingest.ParseLogLevel(c.Log.Level)
	return level
}

// getEnvOrDefault возвращает переменную окружения или значение по умолчанию
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault возвращает переменную окружения как число или значение по умолчанию
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
