package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load merges defaults, an optional YAML file, and DTC_* environment
// overrides, then validates the result. path may be empty; a missing default
// config file is not an error.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	} else if _, err := os.Stat("dtc.yml"); err == nil {
		if err := applyFile(config, "dtc.yml"); err != nil {
			return nil, fmt.Errorf("failed to load dtc.yml: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks a configuration against its struct constraints.
func Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return err
	}
	if config.Hub.PongTimeout.Std() < config.Hub.PingInterval.Std() {
		return fmt.Errorf("hub pong timeout %v must be >= ping interval %v",
			config.Hub.PongTimeout.Std(), config.Hub.PingInterval.Std())
	}
	return nil
}

// applyFile unmarshals a YAML file over the current configuration.
func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// applyEnvOverrides applies DTC_* environment variables to the config.
func applyEnvOverrides(config *Config) {
	config.Server.Addr = GetEnvVar("DTC_ADDR", config.Server.Addr)
	config.Server.ReadTimeout = getEnvDuration("DTC_READ_TIMEOUT", config.Server.ReadTimeout)
	config.Server.WriteTimeout = getEnvDuration("DTC_WRITE_TIMEOUT", config.Server.WriteTimeout)
	config.Server.IdleTimeout = getEnvDuration("DTC_IDLE_TIMEOUT", config.Server.IdleTimeout)

	config.Auth.Algorithm = GetEnvVar("DTC_AUTH_ALGORITHM", config.Auth.Algorithm)
	config.Auth.SecretKey = GetEnvVar("DTC_AUTH_SECRET_KEY", config.Auth.SecretKey)
	config.Auth.PublicKeyPEM = GetEnvVar("DTC_AUTH_PUBLIC_KEY_PEM", config.Auth.PublicKeyPEM)
	config.Auth.JWKSURL = GetEnvVar("DTC_AUTH_JWKS_URL", config.Auth.JWKSURL)
	config.Auth.JWKSRefreshInterval = getEnvDuration("DTC_AUTH_JWKS_REFRESH_INTERVAL", config.Auth.JWKSRefreshInterval)
	config.Auth.JWKSCacheTimeout = getEnvDuration("DTC_AUTH_JWKS_CACHE_TIMEOUT", config.Auth.JWKSCacheTimeout)

	config.Hub.SendBufferSize = GetEnvInt("DTC_HUB_SEND_BUFFER_SIZE", config.Hub.SendBufferSize)
	config.Hub.WriteTimeout = getEnvDuration("DTC_HUB_WRITE_TIMEOUT", config.Hub.WriteTimeout)
	config.Hub.PingInterval = getEnvDuration("DTC_HUB_PING_INTERVAL", config.Hub.PingInterval)
	config.Hub.PongTimeout = getEnvDuration("DTC_HUB_PONG_TIMEOUT", config.Hub.PongTimeout)
	config.Hub.MaxMessageBytes = int64(GetEnvInt("DTC_HUB_MAX_MESSAGE_BYTES", int(config.Hub.MaxMessageBytes)))

	config.MQTT.Enabled = getEnvBool("DTC_MQTT_ENABLED", config.MQTT.Enabled)
	config.MQTT.BrokerURL = GetEnvVar("DTC_MQTT_BROKER_URL", config.MQTT.BrokerURL)
	config.MQTT.ClientID = GetEnvVar("DTC_MQTT_CLIENT_ID", config.MQTT.ClientID)
	config.MQTT.TopicPrefix = GetEnvVar("DTC_MQTT_TOPIC_PREFIX", config.MQTT.TopicPrefix)
	config.MQTT.Format = GetEnvVar("DTC_MQTT_FORMAT", config.MQTT.Format)

	config.Audit.Enabled = getEnvBool("DTC_AUDIT_ENABLED", config.Audit.Enabled)
	config.Audit.Dir = GetEnvVar("DTC_AUDIT_DIR", config.Audit.Dir)
}

// GetEnvVar returns the value of an environment variable with a default.
func GetEnvVar(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt returns the value of an environment variable as an int with a default.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the value of an environment variable as a Duration with a default.
func getEnvDuration(key string, defaultValue Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return Duration(duration)
		}
	}
	return defaultValue
}

// getEnvBool returns the value of an environment variable as a bool with a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
