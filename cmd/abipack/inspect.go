package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/abipack/internal/abistore"
	"github.com/samcharles93/abipack/internal/logger"
	"github.com/samcharles93/abipack/internal/report"
)

func inspectCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the sections, symbols, relocations and metadata of a pipeline binary",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			if cmd.Args().Len() != 1 {
				return cli.Exit("error: inspect takes exactly one file", 2)
			}
			f, err := abistore.Open(cmd.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = f.Close() }()

			log.Debug("classified symbols",
				"pipeline", len(f.Packager().PipelineSymbols()),
				"generic", len(f.Packager().GenericSymbols()),
				"mapped", f.Mapped())
			r, err := report.Build(f.Packager(), f.Size())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if asJSON {
				return report.WriteJSON(os.Stdout, r)
			}
			fmt.Printf("Inspect: %s\n", f.Path())
			return report.WriteText(os.Stdout, r)
		},
	}
}
