// Package config loads the gate configuration from an optional YAML file, environment variables
// prefixed with ZKGATE_ and built-in defaults, in decreasing order of precedence:
// environment, file, defaults.
package config

import (
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/privacybydesign/zkgate/invalidation"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const EnvPrefix = "ZKGATE"

const (
	BackendLocal    = "local"
	BackendEthereum = "ethereum"
)

type Config struct {
	Gate struct {
		Listen  string
		ID      string
		KeyFile string
	}
	Params struct {
		File string
	}
	Ledger struct {
		Backend        string
		Path           string
		SigningKeyFile string
	}
	Ethereum struct {
		URL          string
		Contract     string
		ManagerKey   string
		GasLimit     uint64
		PollInterval time.Duration
	}
	Retry struct {
		CallTimeout     time.Duration
		MaxRetries      uint64
		InitialInterval time.Duration
		MaxInterval     time.Duration
	}
	Log struct {
		Level  string
		Format string
	}
}

var defaults = map[string]interface{}{
	"gate.listen":           "127.0.0.1:5002",
	"gate.id":               "gate",
	"gate.keyFile":          "gate_private_key.pem",
	"params.file":           "params.json",
	"ledger.backend":        BackendLocal,
	"ledger.path":           "ledger",
	"ledger.signingKeyFile": "ledger_signing_key.pem",
	"ethereum.url":          "http://127.0.0.1:7545",
	"ethereum.contract":     "",
	"ethereum.managerKey":   "",
	"ethereum.gasLimit":     uint64(200000),
	"ethereum.pollInterval": "2s",
	"retry.callTimeout":     "30s",
	"retry.maxRetries":      uint64(3),
	"retry.initialInterval": "250ms",
	"retry.maxInterval":     "4s",
	"log.level":             "info",
	"log.format":            "text",
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// Load reads the configuration. If file is empty only defaults and environment are used.
func Load(file string) (*Config, error) {
	v := New()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapPrefix(err, "could not read config file", 0)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	conf := &Config{}
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(conf, viper.DecodeHook(hook)); err != nil {
		return nil, errors.WrapPrefix(err, "could not decode config", 0)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendLocal:
		if c.Ledger.Path == "" {
			return errors.New("config: ledger.path is required for the local backend")
		}
	case BackendEthereum:
		if c.Ethereum.URL == "" || c.Ethereum.Contract == "" {
			return errors.New("config: ethereum.url and ethereum.contract are required for the ethereum backend")
		}
	default:
		return errors.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Gate.ID == "" {
		return errors.New("config: gate.id must not be empty")
	}
	if c.Retry.CallTimeout <= 0 {
		return errors.New("config: retry.callTimeout must be positive")
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		return errors.New("config: retry.maxInterval is smaller than retry.initialInterval")
	}
	return nil
}

func (c *Config) RetryPolicy() invalidation.RetryPolicy {
	return invalidation.RetryPolicy{
		CallTimeout:     c.Retry.CallTimeout,
		MaxRetries:      c.Retry.MaxRetries,
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
	}
}

// ConfigureLogger applies the log level and format to logger.
func (c *Config) ConfigureLogger(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return errors.WrapPrefix(err, "config: invalid log.level", 0)
	}
	logger.SetLevel(level)
	switch c.Log.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return errors.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}
