package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/abipack/internal/abistore"
	"github.com/samcharles93/abipack/internal/logger"
	"github.com/samcharles93/abipack/internal/manifest"
	"github.com/samcharles93/abipack/internal/report"
)

func packCmd() *cli.Command {
	var out string

	return &cli.Command{
		Name:      "pack",
		Usage:     "Build a pipeline binary from a YAML manifest",
		ArgsUsage: "<manifest.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path (default: <output_dir>/<manifest>.elf)",
				Destination: &out,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			if cmd.Args().Len() != 1 {
				return cli.Exit("error: pack takes exactly one manifest path", 2)
			}
			in := cmd.Args().First()

			m, err := manifest.Load(in)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			p, err := m.Build(filepath.Dir(in), manifest.BuildOptions{DataAlign: cfg.DataAlignment})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: build %s: %v", in, err), 1)
			}

			outPath, err := resolvePackOut(in, out, cfg.OutputDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			n, err := abistore.Write(outPath, p)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: write %s: %v", outPath, err), 1)
			}
			for _, sec := range p.Container().Sections().All() {
				if sec.Index() == 0 {
					continue
				}
				log.Debug("wrote section", "name", sec.Name(), "offset", sec.Offset(), "size", sec.Size())
			}
			log.Info("packed pipeline binary", "out", outPath, "size", report.FormatBytes(uint64(n)))
			return nil
		},
	}
}

func resolvePackOut(manifestPath, outFlag, outDir string) (string, error) {
	outFlag = strings.TrimSpace(outFlag)
	if outFlag != "" {
		outPath := filepath.Clean(outFlag)
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return "", err
		}
		return outPath, nil
	}

	base := strings.TrimSuffix(filepath.Base(manifestPath), filepath.Ext(manifestPath))
	if base == "" || base == "." {
		return "", fmt.Errorf("invalid manifest path: %q", manifestPath)
	}
	outDir = strings.TrimSpace(outDir)
	if outDir == "" {
		outDir = "."
	}
	outPath := filepath.Join(outDir, base+".elf")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	return outPath, nil
}
