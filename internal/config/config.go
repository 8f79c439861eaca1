// Package config loads server configuration from a YAML file with
// sensible defaults for every field.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	CORS   CORSConfig   `yaml:"cors"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// CORSConfig configures cross-origin access for browser clients.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is
// not an error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
