package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/lightspeed-pbx/globals"
)

const (
	defaultRequestTimeoutSecs = 10
	defaultSpeakerThreshold   = 0.15
	defaultDebounceMs         = 500
	defaultHistorySize        = 50
)

// Config is the global configuration object which is filled via the
// configuration file.
type Config struct {
	ManagerConfig     ManagerConfig     `mapstructure:"manager"`
	SpeakerConfig     SpeakerConfig     `mapstructure:"speaker"`
	LayoutConfig      LayoutConfig      `mapstructure:"layout"`
	RefreshConfig     RefreshConfig     `mapstructure:"refresh"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	LogLevel          string            `mapstructure:"log_level"`
}

// ManagerConfig configures the connection to the manager interface.
type ManagerConfig struct {
	Url            string `mapstructure:"url"`
	Username       string `mapstructure:"username"`
	Secret         string `mapstructure:"secret"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// SelfChannel marks the channel that is "us" (self-identity for the
	// control permissions)
	SelfChannel string `mapstructure:"self_channel"`
}

// SpeakerConfig configures the active speaker detection.
type SpeakerConfig struct {
	Threshold   float64 `mapstructure:"threshold"`
	DebounceMs  int     `mapstructure:"debounce_ms"`
	HistorySize int     `mapstructure:"history_size"`
}

// LayoutConfig configures the gallery tile calculation.
type LayoutConfig struct {
	Gap        int `mapstructure:"gap"`
	MaxColumns int `mapstructure:"max_columns"`
	MaxRows    int `mapstructure:"max_rows"`
}

// RefreshConfig configures the snapshot polling. CronSpec is a standard cron
// expression; empty disables periodic refresh.
type RefreshConfig struct {
	CronSpec  string `mapstructure:"cron_spec"`
	OnConnect bool   `mapstructure:"on_connect"`
}

// PersistenceConfig configures the last-known-good cache. Type is one of
// "buntdb", "sqlite" or "postgres"; empty disables persistence.
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("manager-url", "m", "", "manager websocket url")
	flagSet.String("manager-username", "", "manager username")
	flagSet.String("manager-secret", "", "manager secret")
	flagSet.String("log-level", "", "log level")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("manager.timeout_seconds", defaultRequestTimeoutSecs)
	viper.SetDefault("speaker.threshold", defaultSpeakerThreshold)
	viper.SetDefault("speaker.debounce_ms", defaultDebounceMs)
	viper.SetDefault("speaker.history_size", defaultHistorySize)
	viper.SetDefault("refresh.on_connect", true)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("LSPBX")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}
