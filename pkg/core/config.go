package core

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	ProductionURL = "https://api.binance.com"
	TestnetURL    = "https://testnet.binance.vision"

	ProductionWSAPIURL = "wss://ws-api.binance.com:443/ws-api/v3"
	TestnetWSAPIURL    = "wss://ws-api.testnet.binance.vision/ws-api/v3"

	ProductionStreamURL = "wss://stream.binance.com:9443/ws"
	TestnetStreamURL    = "wss://stream.testnet.binance.vision/ws"
)

// Config contains the options for a REST dispatcher.
type Config struct {
	BaseURL     string       `json:"base_url" yaml:"base_url" validate:"required,url"`
	Credentials *Credentials `json:"credentials,omitempty" yaml:"credentials,omitempty"`

	// Timeout is the maximum duration for HTTP requests.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"min=1ms"`

	// RequestsPerSecond paces outgoing requests locally. Zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `json:"burst" yaml:"burst" validate:"min=0"`

	LogLevel string `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error disabled"`
}

// DefaultConfig returns a Config for the production spot API with a 10s
// timeout and pacing disabled.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  ProductionURL,
		Timeout:  10 * time.Second,
		LogLevel: "info",
	}
}

var validate = validator.New()

// Validate checks the struct tags and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.RequestsPerSecond > 0 && c.Burst == 0 {
		return fmt.Errorf("Burst must be positive when RequestsPerSecond is set")
	}
	return nil
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithTestnet points the config at the spot testnet.
func (c *Config) WithTestnet() *Config {
	c.BaseURL = TestnetURL
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRateLimit enables local request pacing.
func (c *Config) WithRateLimit(requestsPerSecond float64, burst int) *Config {
	c.RequestsPerSecond = requestsPerSecond
	c.Burst = burst
	return c
}

// LoadConfig decodes a YAML document on top of DefaultConfig and validates it.
func LoadConfig(r io.Reader) (*Config, error) {
	config := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return config, nil
}

// LoadConfigFile reads a YAML config from path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

// NewLogger builds a leveled logger. An empty or unknown level falls back to info.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
