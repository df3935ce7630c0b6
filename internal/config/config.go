package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML unmarshalling of values like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration for the service.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Hub    HubConfig    `yaml:"hub"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Audit  AuditConfig  `yaml:"audit"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr         string   `yaml:"addr" validate:"required"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
	IdleTimeout  Duration `yaml:"idleTimeout"`
}

// AuthConfig controls credential verification.
type AuthConfig struct {
	Algorithm           string   `yaml:"algorithm" validate:"oneof=HS256 RS256"`
	SecretKey           string   `yaml:"secretKey"`
	PublicKeyPEM        string   `yaml:"publicKeyPem"`
	JWKSURL             string   `yaml:"jwksUrl" validate:"omitempty,url"`
	JWKSRefreshInterval Duration `yaml:"jwksRefreshInterval"`
	JWKSCacheTimeout    Duration `yaml:"jwksCacheTimeout"`
}

// HubConfig controls per-connection WebSocket behavior.
type HubConfig struct {
	SendBufferSize  int      `yaml:"sendBufferSize" validate:"gt=0"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	PingInterval    Duration `yaml:"pingInterval"`
	PongTimeout     Duration `yaml:"pongTimeout"`
	MaxMessageBytes int64    `yaml:"maxMessageBytes" validate:"gt=0"`
}

// MQTTConfig controls the optional MQTT device-ingest bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"brokerUrl" validate:"required_if=Enabled true"`
	ClientID    string `yaml:"clientId"`
	TopicPrefix string `yaml:"topicPrefix"`
	Format      string `yaml:"format" validate:"oneof=json nmea"`
}

// AuditConfig controls the append-only audit trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
			IdleTimeout:  Duration(120 * time.Second),
		},
		Auth: AuthConfig{
			Algorithm:           "HS256",
			JWKSRefreshInterval: Duration(15 * time.Minute),
			JWKSCacheTimeout:    Duration(1 * time.Hour),
		},
		Hub: HubConfig{
			SendBufferSize:  64,
			WriteTimeout:    Duration(10 * time.Second),
			PingInterval:    Duration(30 * time.Second),
			PongTimeout:     Duration(60 * time.Second),
			MaxMessageBytes: 4096,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			ClientID:    "dtc-ingest",
			TopicPrefix: "tracker",
			Format:      "json",
		},
		Audit: AuditConfig{
			Enabled: false,
			Dir:     "logs",
		},
	}
}
