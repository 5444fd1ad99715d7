package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

const (
	envLogLevel  = "ABIPACK_LOG_LEVEL"
	envLogFormat = "ABIPACK_LOG_FORMAT"
	envAddr      = "ABIPACK_ADDR"
	envOutDir    = "ABIPACK_OUT_DIR"
)

// Config represents the abipack configuration file
// (~/.config/abipack/config.yaml).
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Pack defaults
	OutputDir     string `yaml:"output_dir"`
	DataAlignment uint64 `yaml:"data_alignment"`

	// Server
	ServerAddress  string `yaml:"server_address"`
	MaxUploadBytes *int64 `yaml:"max_upload_bytes"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "abipack", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv lets ABIPACK_* variables override the file.
func applyEnv(cfg *Config) {
	cfg.LogLevel = env.Str(envLogLevel, cfg.LogLevel)
	cfg.LogFormat = env.Str(envLogFormat, cfg.LogFormat)
	cfg.ServerAddress = env.Str(envAddr, cfg.ServerAddress)
	cfg.OutputDir = env.Str(envOutDir, cfg.OutputDir)
}

// applyLoggingConfig applies config defaults when the flag was not set.
func applyLoggingConfig(c *cli.Command, cfg Config, level, format *string) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		*level = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		*format = cfg.LogFormat
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string, maxUpload *int64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.MaxUploadBytes != nil && !c.IsSet("max-upload") {
		*maxUpload = *cfg.MaxUploadBytes
	}
}
