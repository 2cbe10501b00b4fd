package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/thywilljoshua/expose-generator/internal/ai"
	"github.com/thywilljoshua/expose-generator/internal/logging"
	"github.com/thywilljoshua/expose-generator/internal/photos"
)

const (
	EnvPrefix  = "EXPOSE"
	ConfigName = "exposegen"

	DefaultLogLevel = "info"
	DefaultDirPerm  = 0o750
)

// Config holds everything the commands need.
type Config struct {
	APIKey string
	Model  string

	// Retry and pacing, see ai.Policy.
	MaxRetries    int
	DefaultDelay  time.Duration
	SafetyMargin  time.Duration
	StageDelayCap time.Duration
	GroupDelay    time.Duration
	GroupSize     int

	DupThreshold int
	HashSize     int

	DataDir  string
	LogLevel string
}

func DefaultConfig() *Config {
	p := ai.DefaultPolicy()
	return &Config{
		Model:         ai.DefaultModel,
		MaxRetries:    p.MaxRetries,
		DefaultDelay:  p.DefaultDelay,
		SafetyMargin:  p.SafetyMargin,
		StageDelayCap: p.StageDelayCap,
		GroupDelay:    p.GroupDelay,
		GroupSize:     p.GroupSize,
		DupThreshold:  photos.DefaultThreshold,
		HashSize:      photos.DefaultHashSize,
		DataDir:       defaultDataDir(),
		LogLevel:      DefaultLogLevel,
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "exposegen")
	}
	return ".exposegen"
}

// RegisterFlags adds the persistent flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("config", "", "config file (default ./exposegen.yaml or <data-dir>/exposegen.yaml)")
	fs.String("api-key", "", "Gemini API key (or EXPOSE_API_KEY)")
	fs.String("model", d.Model, "Gemini model")
	fs.Int("max-retries", d.MaxRetries, "attempts per call while rate limited")
	fs.Duration("default-delay", d.DefaultDelay, "wait when the provider suggests no delay")
	fs.Duration("safety-margin", d.SafetyMargin, "added to every rate-limit wait")
	fs.Duration("stage-delay-cap", d.StageDelayCap, "upper bound for waits between stages and groups")
	fs.Duration("group-delay", d.GroupDelay, "pause between group calls")
	fs.Int("group-size", d.GroupSize, "images per call in the batched stage")
	fs.Int("dup-threshold", d.DupThreshold, "Hamming distance below which photos are duplicates")
	fs.Int("hash-size", d.HashSize, "difference hash grid size")
	fs.String("data-dir", d.DataDir, "directory for the run history")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
}

// keys maps config keys to flag names.
var keys = map[string]string{
	"api_key":         "api-key",
	"model":           "model",
	"max_retries":     "max-retries",
	"default_delay":   "default-delay",
	"safety_margin":   "safety-margin",
	"stage_delay_cap": "stage-delay-cap",
	"group_delay":     "group-delay",
	"group_size":      "group-size",
	"dup_threshold":   "dup-threshold",
	"hash_size":       "hash-size",
	"data_dir":        "data-dir",
	"log_level":       "log-level",
}

// Load resolves defaults, the optional config file, EXPOSE_* variables and flags, in
// increasing priority. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("api_key", "")
	v.SetDefault("model", cfg.Model)
	v.SetDefault("max_retries", cfg.MaxRetries)
	v.SetDefault("default_delay", cfg.DefaultDelay)
	v.SetDefault("safety_margin", cfg.SafetyMargin)
	v.SetDefault("stage_delay_cap", cfg.StageDelayCap)
	v.SetDefault("group_delay", cfg.GroupDelay)
	v.SetDefault("group_size", cfg.GroupSize)
	v.SetDefault("dup_threshold", cfg.DupThreshold)
	v.SetDefault("hash_size", cfg.HashSize)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("log_level", cfg.LogLevel)

	if fs != nil {
		for key, flag := range keys {
			if f := fs.Lookup(flag); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	if err := readConfigFile(v, fs); err != nil {
		return nil, err
	}

	cfg.APIKey = v.GetString("api_key")
	if cfg.APIKey == "" {
		// the variable Google's own tooling reads
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	cfg.Model = v.GetString("model")
	cfg.MaxRetries = v.GetInt("max_retries")
	cfg.DefaultDelay = v.GetDuration("default_delay")
	cfg.SafetyMargin = v.GetDuration("safety_margin")
	cfg.StageDelayCap = v.GetDuration("stage_delay_cap")
	cfg.GroupDelay = v.GetDuration("group_delay")
	cfg.GroupSize = v.GetInt("group_size")
	cfg.DupThreshold = v.GetInt("dup_threshold")
	cfg.HashSize = v.GetInt("hash_size")
	cfg.DataDir = v.GetString("data_dir")
	cfg.LogLevel = v.GetString("log_level")

	if cfg.DataDir != "" {
		if abs, err := filepath.Abs(cfg.DataDir); err == nil {
			cfg.DataDir = abs
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", path, err)
			}
			return nil
		}
	}
	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(v.GetString("data_dir"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.MaxRetries < 1 || c.MaxRetries > 10 {
		return errors.New("max_retries must be between 1 and 10")
	}
	if c.GroupSize < 1 {
		return errors.New("group_size must be at least 1")
	}
	for name, d := range map[string]time.Duration{
		"default_delay":   c.DefaultDelay,
		"safety_margin":   c.SafetyMargin,
		"stage_delay_cap": c.StageDelayCap,
		"group_delay":     c.GroupDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.HashSize < 2 || c.HashSize > 32 {
		return errors.New("hash_size must be between 2 and 32")
	}
	if c.DupThreshold < 1 || c.DupThreshold > c.HashSize*c.HashSize+1 {
		return fmt.Errorf("dup_threshold must be between 1 and %d", c.HashSize*c.HashSize+1)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir cannot be empty")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Policy converts the retry settings.
func (c *Config) Policy() ai.Policy {
	return ai.Policy{
		MaxRetries:    c.MaxRetries,
		DefaultDelay:  c.DefaultDelay,
		SafetyMargin:  c.SafetyMargin,
		StageDelayCap: c.StageDelayCap,
		GroupDelay:    c.GroupDelay,
		GroupSize:     c.GroupSize,
	}
}

// Logger builds the CLI logger for the configured level.
func (c *Config) Logger(prefix string) *logging.Logger {
	level, _ := logging.ParseLevel(c.LogLevel)
	return logging.Stderr(prefix, level)
}

// EnsureDataDir creates the data directory.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, DefaultDirPerm); err != nil {
		return fmt.Errorf("cannot create data directory %s: %w", c.DataDir, err)
	}
	return nil
}
