package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/abipack/internal/abistore"
	"github.com/samcharles93/abipack/internal/logger"
)

func extractCmd() *cli.Command {
	var (
		section  string
		metadata bool
		out      string
	)

	return &cli.Command{
		Name:      "extract",
		Usage:     "Write one section or the raw metadata note of a pipeline binary",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "section", Aliases: []string{"s"}, Usage: "section name, for example .text", Destination: &section},
			&cli.BoolFlag{Name: "metadata", Usage: "extract the msgpack metadata document", Destination: &metadata},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output path (default: stdout)", Destination: &out},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			if cmd.Args().Len() != 1 {
				return cli.Exit("error: extract takes exactly one file", 2)
			}
			if (section == "") == !metadata {
				return cli.Exit("error: set exactly one of --section or --metadata", 2)
			}

			f, err := abistore.Open(cmd.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = f.Close() }()

			var data []byte
			if metadata {
				data = f.Packager().RawMetadata()
				if data == nil {
					return cli.Exit("error: binary has no metadata note", 1)
				}
				data = append([]byte(nil), data...)
			} else {
				data, err = f.Section(section)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
			}

			if err := writeOutput(out, data); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Debug("extracted", "section", section, "metadata", metadata, "size", len(data))
			return nil
		},
	}
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
