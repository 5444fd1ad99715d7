package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/abipack/internal/logger"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	cfg        Config
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json)",
			Value:       logger.FormatPretty,
			Destination: &logFormat,
		},
	}
}

// setup loads the config file, applies it under explicit flags and stores
// the logger in the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error
	cfg, err = LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	applyEnv(&cfg)
	applyLoggingConfig(cmd, cfg, &logLevel, &logFormat)

	log, err := logger.Setup(os.Stderr, logFormat, logLevel)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 2)
	}
	return logger.WithContext(ctx, log), nil
}
