package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds daemon settings read from file, environment, and defaults.
type Config struct {
	LogLevel  string `json:"logLevel" mapstructure:"logLevel"`
	LogPretty bool   `json:"logPretty" mapstructure:"logPretty"`

	ListenAddr string `json:"listenAddr" mapstructure:"listenAddr"`

	ScenarioPath string `json:"scenarioPath" mapstructure:"scenarioPath"`
	Seed         int64  `json:"seed" mapstructure:"seed"`

	Replay ReplayConfig `json:"replay" mapstructure:"replay"`
}

// ReplayConfig holds the replay store backend settings.
type ReplayConfig struct {
	Enabled          bool   `json:"enabled" mapstructure:"enabled"`
	DBPath           string `json:"dbPath" mapstructure:"dbPath"`
	KeyframeInterval uint64 `json:"keyframeInterval" mapstructure:"keyframeInterval"`
}

// Load reads configuration from skirmishd.cfg.json in configDir, applying
// defaults first and SKIRMISH_* environment variables last. A missing file
// is fine; defaults carry the daemon.
func Load(configDir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("logLevel", "info")
	v.SetDefault("logPretty", false)
	v.SetDefault("listenAddr", ":8790")
	v.SetDefault("scenarioPath", "scenario.json")
	v.SetDefault("seed", 1)

	v.SetDefault("replay.enabled", true)
	v.SetDefault("replay.dbPath", "./skirmish_replay.db")
	v.SetDefault("replay.keyframeInterval", 600)

	v.SetConfigName("skirmishd.cfg.json")
	v.SetConfigType("json")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("skirmish")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// Logger builds the process logger from the configured level and format.
func (c *Config) Logger() zerolog.Logger {
	var level zerolog.Level
	switch strings.ToUpper(c.LogLevel) {
	case "TRACE":
		level = zerolog.TraceLevel
	case "DEBUG":
		level = zerolog.DebugLevel
	case "WARN":
		level = zerolog.WarnLevel
	case "ERROR":
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if c.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
