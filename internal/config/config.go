package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Media     MediaConfig     `yaml:"media"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Responder ResponderConfig `yaml:"responder"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type EngineConfig struct {
	// Mode selects the engine implementation: "remote" drives a sidecar
	// process, "mock" runs the scripted in-process engine.
	Mode string `yaml:"mode"`
	// URL is the sidecar base URL in remote mode.
	URL string `yaml:"url"`
	// CommandTimeout bounds individual sidecar HTTP calls.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

type GatewayConfig struct {
	// SendTimeout bounds a single engine send, separate from the media
	// fetch timeout.
	SendTimeout time.Duration `yaml:"send_timeout"`
}

type MediaConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxBytes     int64         `yaml:"max_bytes"`
}

type RecoveryConfig struct {
	// MaxRetries caps initialize attempts per recovery run. Exceeding it
	// gives up on the session (reported over the realtime channel) rather
	// than crashing the process.
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type ResponderConfig struct {
	AutoReplyPing bool `yaml:"auto_reply_ping"`
	RejectCalls   bool `yaml:"reject_calls"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7005,
			Host: "0.0.0.0",
		},
		Engine: EngineConfig{
			Mode:           "remote",
			URL:            "http://127.0.0.1:7006",
			CommandTimeout: 30 * time.Second,
		},
		Gateway: GatewayConfig{
			SendTimeout: 15 * time.Second,
		},
		Media: MediaConfig{
			FetchTimeout: 30 * time.Second,
			MaxBytes:     10 << 20, // 10 MiB
		},
		Recovery: RecoveryConfig{
			MaxRetries:     5,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     60 * time.Second,
		},
		Responder: ResponderConfig{
			AutoReplyPing: true,
			RejectCalls:   true,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Engine.Mode {
	case "remote", "mock":
	default:
		return fmt.Errorf("engine.mode must be \"remote\" or \"mock\", got %q", c.Engine.Mode)
	}
	if c.Media.MaxBytes <= 0 {
		return fmt.Errorf("media.max_bytes must be positive, got %d", c.Media.MaxBytes)
	}
	if c.Recovery.MaxRetries < 0 {
		return fmt.Errorf("recovery.max_retries must not be negative, got %d", c.Recovery.MaxRetries)
	}
	return nil
}
