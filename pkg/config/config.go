// Package config loads bridge configuration from YAML. Credential fields may
// reference environment variables with ${VAR} so secrets stay out of files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veiloq/exchange-bridge/pkg/exchanges/interfaces"
)

// Config is the top-level bridge configuration.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ExchangeConfig selects and parameterizes one exchange connection.
type ExchangeConfig struct {
	Name      string `yaml:"name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`

	// Mode is "market-data" or "trading".
	Mode string `yaml:"mode"`

	RESTEndpoint string `yaml:"rest_endpoint"`
	WSEndpoint   string `yaml:"ws_endpoint"`

	HTTPTimeout         time.Duration `yaml:"http_timeout"`
	WSReconnectInterval time.Duration `yaml:"ws_reconnect_interval"`
	WSHeartbeatInterval time.Duration `yaml:"ws_heartbeat_interval"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references; unset variables expand to empty.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes configuration from YAML bytes.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Exchange.APIKey = expandEnv(cfg.Exchange.APIKey)
	cfg.Exchange.APISecret = expandEnv(cfg.Exchange.APISecret)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Exchange.Name == "" {
		return fmt.Errorf("exchange.name is required")
	}
	switch c.Exchange.Mode {
	case "", "market-data", "trading":
	default:
		return fmt.Errorf("exchange.mode must be market-data or trading, got %q", c.Exchange.Mode)
	}
	if c.Exchange.Mode == "trading" && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("trading mode requires exchange.api_key and exchange.api_secret")
	}
	return nil
}

// Settings converts the exchange section into connection settings.
func (c *Config) Settings() interfaces.Settings {
	s := interfaces.NewSettings()
	s.APIKey = c.Exchange.APIKey
	s.APISecret = c.Exchange.APISecret
	if c.Exchange.Mode == "trading" {
		s.Mode = interfaces.ModeTrading
	}
	if c.Exchange.HTTPTimeout > 0 {
		s.HTTPTimeout = c.Exchange.HTTPTimeout
	}
	if c.Exchange.WSReconnectInterval > 0 {
		s.WSReconnectInterval = c.Exchange.WSReconnectInterval
	}
	if c.Exchange.WSHeartbeatInterval > 0 {
		s.WSHeartbeatInterval = c.Exchange.WSHeartbeatInterval
	}
	return s
}
