// Package config provides configuration loading and validation for hydrocore.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"hydrocore/internal/logger"
)

const (
	DriverJSON     = "json"
	DriverPostgres = "postgres"
)

// Config represents the complete hydrocore configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Storage   StorageConfig   `yaml:"storage"`
	Control   ControlConfig   `yaml:"control"`
	History   HistoryConfig   `yaml:"history"`
	NATS      NATSConfig      `yaml:"nats"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Log       logger.Config   `yaml:"log"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DiscoveryConfig controls the SSDP responder. LocalIP is advertised in
// LOCATION; empty means auto-detect.
type DiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	LocalIP string `yaml:"local_ip"`
	Port    int    `yaml:"port"`
}

type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	JSON     JSONConfig     `yaml:"json"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type JSONConfig struct {
	DevicesPath  string `yaml:"devices_path"`
	ReadingsPath string `yaml:"readings_path"`
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type ControlConfig struct {
	Timezone           string  `yaml:"timezone"`
	MoistureHysteresis float64 `yaml:"moisture_hysteresis"`
	LightHysteresis    float64 `yaml:"light_hysteresis"`
	DayStartHour       int     `yaml:"day_start_hour"`
	DayEndHour         int     `yaml:"day_end_hour"`
}

type HistoryConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

type NATSConfig struct {
	// URL empty disables event publishing
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type MirrorConfig struct {
	Hue           HueConfig           `yaml:"hue"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
}

type HueConfig struct {
	Host   string         `yaml:"host"`
	User   string         `yaml:"user"`
	Lights map[string]int `yaml:"lights,omitempty"`
}

type HomeAssistantConfig struct {
	URL      string                   `yaml:"url"`
	Token    string                   `yaml:"token"`
	Entities map[string]EntityMapping `yaml:"entities,omitempty"`
}

type EntityMapping struct {
	Pump  string `yaml:"pump"`
	Light string `yaml:"light"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:           ":8080",
			RequestTimeout: 5 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			Driver: DriverJSON,
			JSON: JSONConfig{
				DevicesPath:  filepath.Join("data", "devices.json"),
				ReadingsPath: filepath.Join("data", "readings.jsonl"),
			},
			Postgres: PostgresConfig{MaxConns: 10},
		},
		Control: ControlConfig{
			Timezone:           "Local",
			MoistureHysteresis: 5,
			LightHysteresis:    5,
			DayStartHour:       6,
			DayEndHour:         22,
		},
		History: HistoryConfig{
			DefaultLimit: 50,
			MaxLimit:     500,
		},
		NATS: NATSConfig{
			SubjectPrefix: "hydrocore",
		},
		Log: logger.Config{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.RequestTimeout <= 0 {
		errs = append(errs, errors.New("http.request_timeout must be positive"))
	}

	switch c.Storage.Driver {
	case DriverJSON:
		if c.Storage.JSON.DevicesPath == "" || c.Storage.JSON.ReadingsPath == "" {
			errs = append(errs, errors.New("storage.json paths are required"))
		}
	case DriverPostgres:
		if c.Storage.Postgres.URL == "" {
			errs = append(errs, errors.New("storage.postgres.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of json, postgres", c.Storage.Driver))
	}

	if c.Control.MoistureHysteresis < 0 || c.Control.LightHysteresis < 0 {
		errs = append(errs, errors.New("control hysteresis must not be negative"))
	}
	if c.Control.DayStartHour < 0 || c.Control.DayEndHour > 24 || c.Control.DayStartHour >= c.Control.DayEndHour {
		errs = append(errs, fmt.Errorf("control day window [%d,%d) is invalid", c.Control.DayStartHour, c.Control.DayEndHour))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if c.History.DefaultLimit <= 0 || c.History.MaxLimit < c.History.DefaultLimit {
		errs = append(errs, errors.New("history limits must satisfy 0 < default_limit <= max_limit"))
	}

	if c.Discovery.Enabled && (c.Discovery.Port <= 0 || c.Discovery.Port > 65535) {
		errs = append(errs, fmt.Errorf("discovery.port %d is out of range", c.Discovery.Port))
	}

	return errors.Join(errs...)
}

// Location resolves control.timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Control.Timezone == "" || c.Control.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Control.Timezone)
	if err != nil {
		return nil, fmt.Errorf("control.timezone: %w", err)
	}
	return loc, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load applies defaults, then the file at path (if any), then environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("HYDROCORE_CONFIG")
	}

	config := DefaultConfig()
	if path != "" {
		var err error
		if config, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("HYDROCORE_HTTP_ADDR"); ok && v != "" {
		c.HTTP.Addr = v
	}
	if v, ok := lookup("HYDROCORE_POSTGRES_URL"); ok && v != "" {
		c.Storage.Driver = DriverPostgres
		c.Storage.Postgres.URL = v
	}
	if v, ok := lookup("HYDROCORE_NATS_URL"); ok {
		c.NATS.URL = v
	}
	if v, ok := lookup("LOCAL_IP"); ok && v != "" {
		c.Discovery.LocalIP = v
	}
	if v, ok := lookup("HYDROCORE_DISCOVERY_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HYDROCORE_DISCOVERY_PORT: %w", err)
		}
		c.Discovery.Port = port
	}
	if v, ok := lookup("HASS_URL"); ok && v != "" {
		c.Mirror.HomeAssistant.URL = v
	}
	if v, ok := lookup("HASS_TOKEN"); ok && v != "" {
		c.Mirror.HomeAssistant.Token = v
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
