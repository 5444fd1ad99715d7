package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if cfg != (Config{}) {
			t.Fatalf("expected zero config, got %+v", cfg)
		}
	})

	t.Run("parses fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "log_level: debug\nserver_address: 0.0.0.0:9000\nmax_upload_bytes: 1024\noutput_dir: build\ndata_alignment: 64\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if cfg.LogLevel != "debug" || cfg.ServerAddress != "0.0.0.0:9000" || cfg.OutputDir != "build" || cfg.DataAlignment != 64 {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if cfg.MaxUploadBytes == nil || *cfg.MaxUploadBytes != 1024 {
			t.Fatalf("max_upload_bytes = %v", cfg.MaxUploadBytes)
		}
	})

	t.Run("invalid yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("log_level: [\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Fatal("expected parse error")
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(envLogLevel, "warn")
	t.Setenv(envAddr, "127.0.0.1:7000")

	cfg := Config{LogLevel: "debug", LogFormat: "json", ServerAddress: "x"}
	applyEnv(&cfg)
	if cfg.LogLevel != "warn" || cfg.ServerAddress != "127.0.0.1:7000" {
		t.Fatalf("env should override file: %+v", cfg)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("unset env should keep file value: %+v", cfg)
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfg := Config{LogLevel: "debug", LogFormat: "json"}

	run := func(args ...string) (string, string) {
		t.Helper()
		var level, format string
		cmd := &cli.Command{
			Name:  "t",
			Flags: loggingFlags(),
			Action: func(ctx context.Context, c *cli.Command) error {
				level, format = logLevel, logFormat
				applyLoggingConfig(c, cfg, &level, &format)
				return nil
			},
		}
		if err := cmd.Run(context.Background(), append([]string{"t"}, args...)); err != nil {
			t.Fatalf("run: %v", err)
		}
		return level, format
	}

	if level, format := run(); level != "debug" || format != "json" {
		t.Fatalf("config should fill unset flags: %s %s", level, format)
	}
	if level, format := run("--log-level", "error"); level != "error" || format != "json" {
		t.Fatalf("explicit flag should win: %s %s", level, format)
	}
}
