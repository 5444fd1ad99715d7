package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/abipack/internal/abistore"
	"github.com/samcharles93/abipack/internal/logger"
	"github.com/samcharles93/abipack/pkg/abi"
)

func relocateCmd() *cli.Command {
	var (
		target string
		base   string
		out    string
	)

	return &cli.Command{
		Name:      "relocate",
		Usage:     "Apply the relocations of a section for a load address and write the patched bytes",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "target", Usage: "section to patch (code or data)", Value: "code", Destination: &target},
			&cli.StringFlag{Name: "base", Usage: "load address of the section, decimal or 0x hex", Value: "0", Destination: &base},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output path (default: stdout)", Destination: &out},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			if cmd.Args().Len() != 1 {
				return cli.Exit("error: relocate takes exactly one file", 2)
			}
			st, ok := abi.ParseSectionType(target)
			if !ok || (st != abi.SectionCode && st != abi.SectionData) {
				return cli.Exit(fmt.Sprintf("error: --target must be code or data, got %q", target), 2)
			}
			addr, err := strconv.ParseUint(base, 0, 64)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: --base: %v", err), 2)
			}

			f, err := abistore.Open(cmd.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = f.Close() }()

			buf, err := relocate(f.Packager(), st, addr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := writeOutput(out, buf); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Debug("relocated", "target", st.String(), "base", fmt.Sprintf("%#x", addr), "size", len(buf))
			return nil
		},
	}
}

// relocate returns a patched copy of the target section.
func relocate(p *abi.Packager, target abi.SectionType, base uint64) ([]byte, error) {
	var src []byte
	switch target {
	case abi.SectionCode:
		src = p.PipelineCode()
	case abi.SectionData:
		src, _, _ = p.Data()
	}
	if src == nil {
		return nil, fmt.Errorf("binary has no %s section", target)
	}
	buf := append([]byte(nil), src...)
	if err := p.ApplyRelocations(buf, target, base); err != nil {
		return nil, err
	}
	return buf, nil
}
