package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PACKS_RPC.
const EnvPrefix = "PACKS"

// Config holds settings for the read-only commands (leaderboard, rewards, holdings).
type Config struct {
	RPCURL       string
	ContractPath string
	Account      string
	Limit        int
	Input        string
	PGDSN        string
	Save         bool
	Cached       bool
	JSON         bool
	Timeout      time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"contract-config": "./config/config.json",
		"limit":           50,
		"timeout":         30 * time.Second,
		"log-level":       "info",
	})
	if err != nil {
		return Config{}, err
	}

	return Config{
		RPCURL:       v.GetString("rpc"),
		ContractPath: v.GetString("contract-config"),
		Account:      v.GetString("account"),
		Limit:        v.GetInt("limit"),
		Input:        v.GetString("in"),
		PGDSN:        v.GetString("pg-dsn"),
		Save:         v.GetBool("save"),
		Cached:       v.GetBool("cached"),
		JSON:         v.GetBool("json"),
		Timeout:      v.GetDuration("timeout"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}

// OpenConfig holds settings for opening a pack and awaiting its reward.
type OpenConfig struct {
	RPCURL       string
	ContractPath string
	PrivateKey   string
	Account      string
	FromBlock    uint64
	PollInterval time.Duration
	PollTimeout  time.Duration
	JSON         bool
	LogLevel     string
}

// LoadOpen merges config file, environment variables, and flags into OpenConfig.
func LoadOpen(cfgFile string, flags *pflag.FlagSet) (OpenConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"contract-config": "./config/config.json",
		"poll-interval":   2 * time.Second,
		"poll-timeout":    60 * time.Second,
		"log-level":       "info",
	})
	if err != nil {
		return OpenConfig{}, err
	}

	return OpenConfig{
		RPCURL:       v.GetString("rpc"),
		ContractPath: v.GetString("contract-config"),
		PrivateKey:   v.GetString("private-key"),
		Account:      v.GetString("account"),
		FromBlock:    v.GetUint64("from"),
		PollInterval: v.GetDuration("poll-interval"),
		PollTimeout:  v.GetDuration("poll-timeout"),
		JSON:         v.GetBool("json"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}

// SyncConfig holds settings for archiving RewardClaimed events.
type SyncConfig struct {
	RPCURL            string
	ContractPath      string
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Out               string
	PGDSN             string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	RateLimit         float64
	LogLevel          string
}

// LoadSync merges config file, environment variables, and flags into SyncConfig.
func LoadSync(cfgFile string, flags *pflag.FlagSet) (SyncConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"contract-config":    "./config/config.json",
		"batch-size":         uint64(2000),
		"out":                "./data/rewards.jsonl",
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"rate-limit":         10.0,
		"log-level":          "info",
	})
	if err != nil {
		return SyncConfig{}, err
	}

	return SyncConfig{
		RPCURL:            v.GetString("rpc"),
		ContractPath:      v.GetString("contract-config"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		PGDSN:             v.GetString("pg-dsn"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		RateLimit:         v.GetFloat64("rate-limit"),
		LogLevel:          v.GetString("log-level"),
	}, nil
}

// ServeConfig holds settings for the HTTP service.
type ServeConfig struct {
	RPCURL        string
	ContractPath  string
	PrivateKey    string
	Listen        string
	PGDSN         string
	Limit         int
	Debounce      time.Duration
	HeadInterval  time.Duration
	PollInterval  time.Duration
	PollTimeout   time.Duration
	RateLimit     float64
	RateBurst     int
	ShutdownGrace time.Duration
	LogLevel      string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"contract-config": "./config/config.json",
		"listen":          ":8080",
		"limit":           50,
		"debounce":        300 * time.Millisecond,
		"head-interval":   5 * time.Second,
		"poll-interval":   2 * time.Second,
		"poll-timeout":    60 * time.Second,
		"rate-limit":      5.0,
		"rate-burst":      10,
		"shutdown-grace":  10 * time.Second,
		"log-level":       "info",
	})
	if err != nil {
		return ServeConfig{}, err
	}

	return ServeConfig{
		RPCURL:        v.GetString("rpc"),
		ContractPath:  v.GetString("contract-config"),
		PrivateKey:    v.GetString("private-key"),
		Listen:        v.GetString("listen"),
		PGDSN:         v.GetString("pg-dsn"),
		Limit:         v.GetInt("limit"),
		Debounce:      v.GetDuration("debounce"),
		HeadInterval:  v.GetDuration("head-interval"),
		PollInterval:  v.GetDuration("poll-interval"),
		PollTimeout:   v.GetDuration("poll-timeout"),
		RateLimit:     v.GetFloat64("rate-limit"),
		RateBurst:     v.GetInt("rate-burst"),
		ShutdownGrace: v.GetDuration("shutdown-grace"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}

// newViper builds a viper instance with env overrides, bound flags and an
// optional settings file. Without --config, ./packs.{yaml,json,toml} is used
// when present.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("packs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}
