package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultPlaybookPath is the colon separated list of directories searched for playbooks.
const DefaultPlaybookPath = ".:.uplaybooks:~/.config/uplaybook:~/.config/uplaybook/library:/etc/uplaybook"

// DefaultFilesPath is the colon separated list of directories searched for task source
// files. "..." refers to the directory the running playbook lives in.
const DefaultFilesPath = "...:.../files:."

// Config holds all configuration settings
type Config struct {
	Logging      LoggingConfig  `mapstructure:"logging"`
	PlaybookPath string         `mapstructure:"playbook_path"`
	FilesPath    string         `mapstructure:"files_path"`
	Handlers     HandlersConfig `mapstructure:"handlers"`
	Metrics      MetricsConfig  `mapstructure:"metrics"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Format     string `mapstructure:"format"`
	Timestamps bool   `mapstructure:"timestamps"`
}

// HandlersConfig controls the end-of-run handler flush.
type HandlersConfig struct {
	// MaxFlushPasses bounds how many times the final flush drains handlers that
	// were notified by other handlers.
	MaxFlushPasses int `mapstructure:"max_flush_passes"`
}

// MetricsConfig controls the optional Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Load loads configuration from files and environment variables
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	for _, path := range configPaths {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// UP_PLAYBOOK_PATH, UP_FILES_PATH, UP_LOGGING_LEVEL, ...
	v.SetEnvPrefix("UP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if config.Handlers.MaxFlushPasses < 1 {
		config.Handlers.MaxFlushPasses = 1
	}

	return &config, nil
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "plain",
		},
		PlaybookPath: DefaultPlaybookPath,
		FilesPath:    DefaultFilesPath,
		Handlers:     HandlersConfig{MaxFlushPasses: 10},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.timestamps", d.Logging.Timestamps)

	v.SetDefault("playbook_path", d.PlaybookPath)
	v.SetDefault("files_path", d.FilesPath)

	v.SetDefault("handlers.max_flush_passes", d.Handlers.MaxFlushPasses)

	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}
