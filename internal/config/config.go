// Package config loads citejump settings from defaults, an optional YAML
// file, CITEJUMP_* environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/csheth/citejump/internal/channel"
	"github.com/csheth/citejump/internal/document"
	"github.com/csheth/citejump/internal/logger"
	"github.com/csheth/citejump/internal/match"
	"github.com/csheth/citejump/internal/viewer"
)

const (
	EnvPrefix     = "CITEJUMP"
	ConfigEnvVar  = "CITEJUMP_CONFIG"
	DefaultName   = "citejump"
	storeFileName = "channel.db"
	logFileName   = "viewer.log"
)

type Config struct {
	DataDir string        `mapstructure:"data_dir"`
	Log     LogConfig     `mapstructure:"log"`
	Channel ChannelConfig `mapstructure:"channel"`
	Matcher MatcherConfig `mapstructure:"matcher"`
	Viewer  ViewerConfig  `mapstructure:"viewer"`
	Launch  LaunchConfig  `mapstructure:"launch"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
	File  string `mapstructure:"file"`
}

type ChannelConfig struct {
	StorePath     string        `mapstructure:"store_path"`
	RedisURL      string        `mapstructure:"redis_url" validate:"omitempty,redis_url"`
	Retention     time.Duration `mapstructure:"retention" validate:"gt=0"`
	InlineLimit   int           `mapstructure:"inline_limit" validate:"gt=0"`
	MemoryEntries int           `mapstructure:"memory_entries" validate:"gte=1"`
}

type MatcherConfig struct {
	StopWords       []string `mapstructure:"stop_words"`
	PositionalLimit int      `mapstructure:"positional_limit" validate:"gte=1"`
	MaxKeywords     int      `mapstructure:"max_keywords" validate:"gte=1"`
}

type ViewerConfig struct {
	PageOffset int     `mapstructure:"page_offset"`
	Zoom       float64 `mapstructure:"zoom" validate:"gte=0.5,lte=3"`
}

type LaunchConfig struct {
	// Exec is a command template; "{address}" is replaced by the navigation
	// address. Empty prints the address.
	Exec string `mapstructure:"exec"`
}

// Default returns the built-in settings.
func Default() *Config {
	cacheDir := document.DefaultCacheDir()
	defaults := match.DefaultOptions()
	return &Config{
		DataDir: ".",
		Log: LogConfig{
			Level: string(logger.InfoLevel),
			File:  filepath.Join(cacheDir, logFileName),
		},
		Channel: ChannelConfig{
			StorePath:     filepath.Join(cacheDir, storeFileName),
			Retention:     channel.DefaultRetention,
			InlineLimit:   channel.DefaultInlineLimit,
			MemoryEntries: 256,
		},
		Matcher: MatcherConfig{
			StopWords:       append([]string(nil), match.DefaultStopWords...),
			PositionalLimit: defaults.PositionalLimit,
			MaxKeywords:     defaults.MaxKeywords,
		},
		Viewer: ViewerConfig{Zoom: viewer.DefaultZoom},
	}
}

// Load reads the configuration. path may be empty, in which case
// CITEJUMP_CONFIG and then ./citejump.yaml are tried. flags, when non-nil, are
// bound by their dotted key names (for example "log.level").
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(ConfigEnvVar)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("channel.store_path", d.Channel.StorePath)
	v.SetDefault("channel.redis_url", d.Channel.RedisURL)
	v.SetDefault("channel.retention", d.Channel.Retention)
	v.SetDefault("channel.inline_limit", d.Channel.InlineLimit)
	v.SetDefault("channel.memory_entries", d.Channel.MemoryEntries)
	v.SetDefault("matcher.stop_words", d.Matcher.StopWords)
	v.SetDefault("matcher.positional_limit", d.Matcher.PositionalLimit)
	v.SetDefault("matcher.max_keywords", d.Matcher.MaxKeywords)
	v.SetDefault("viewer.page_offset", d.Viewer.PageOffset)
	v.SetDefault("viewer.zoom", d.Viewer.Zoom)
	v.SetDefault("launch.exec", d.Launch.Exec)
}

const flagKeyAnnotation = "citejump_config_key"

// FlagKey marks the flag called name as setting the configuration key.
func FlagKey(flags *pflag.FlagSet, name, key string) error {
	return flags.SetAnnotation(name, flagKeyAnnotation, []string{key})
}

// bindFlags binds flags marked with FlagKey, and flags named after a
// configuration key. Other flags are ignored.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key := f.Name
		if keys := f.Annotations[flagKeyAnnotation]; len(keys) > 0 {
			key = keys[0]
		}
		if err != nil || !v.IsSet(key) {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := RegisterCustomValidators(validate); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MatcherOptions converts the matcher section.
func (c *Config) MatcherOptions() match.Options {
	opts := match.DefaultOptions()
	opts.PositionalLimit = c.Matcher.PositionalLimit
	opts.MaxKeywords = c.Matcher.MaxKeywords
	if len(c.Matcher.StopWords) > 0 {
		opts.StopWords = c.Matcher.StopWords
	}
	return opts
}

// LoggerConfig converts the log section. Output is left to the caller.
func (c *Config) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.LogLevel(c.Log.Level)
	cfg.JSON = c.Log.JSON
	return cfg
}
