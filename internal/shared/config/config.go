package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	VAPID     VAPIDConfig
	Push      PushConfig
	TLS       TLSConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// VAPIDConfig holds the application server identity for Web Push.
// Keys are provided, not generated: rotation happens outside this service.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

type PushConfig struct {
	TTL      int           // retention hint sent to the push service, seconds
	TokenTTL time.Duration // lifetime of each minted VAPID token
	Timeout  time.Duration // per-delivery HTTP timeout
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	pushTTL, err := strconv.Atoi(getEnv("PUSH_TTL", "86400"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUSH_TTL: %w", err)
	}
	pushTokenTTL, err := time.ParseDuration(getEnv("PUSH_TOKEN_TTL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUSH_TOKEN_TTL: %w", err)
	}
	pushTimeout, err := time.ParseDuration(getEnv("PUSH_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUSH_TIMEOUT: %w", err)
	}

	// Parse allowed hosts (comma-separated list)
	allowedHostsStr := getEnv("ALLOWED_HOSTS", "")
	var allowedHosts []string
	if allowedHostsStr != "" {
		for _, host := range strings.Split(allowedHostsStr, ",") {
			host = strings.TrimSpace(host)
			if host != "" {
				allowedHosts = append(allowedHosts, host)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: allowedHosts,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "mypace"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mypace"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		VAPID: VAPIDConfig{
			PublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
			PrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
			Subject:    getEnv("VAPID_SUBJECT", ""),
		},
		Push: PushConfig{
			TTL:      pushTTL,
			TokenTTL: pushTokenTTL,
			Timeout:  pushTimeout,
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "mypace-push"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
	}

	// Validate required fields
	if cfg.VAPID.PublicKey == "" {
		return nil, fmt.Errorf("VAPID_PUBLIC_KEY is required")
	}
	if cfg.VAPID.PrivateKey == "" {
		return nil, fmt.Errorf("VAPID_PRIVATE_KEY is required")
	}
	if cfg.VAPID.Subject == "" {
		return nil, fmt.Errorf("VAPID_SUBJECT is required")
	}
	if !strings.HasPrefix(cfg.VAPID.Subject, "mailto:") && !strings.HasPrefix(cfg.VAPID.Subject, "https:") {
		return nil, fmt.Errorf("VAPID_SUBJECT must be a mailto: or https: URI")
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS is enabled")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS is enabled")
		}
	}

	return cfg, nil
}

func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
