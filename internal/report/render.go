package report

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/goccy/go-json"
)

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) section(title string) {
	line := strings.Repeat("-", len(title)+8)
	p.printf("\n%s\n--- %s ---\n%s\n", line, title, line)
}

func (p *printer) row(label, value string) {
	if value == "" {
		return
	}
	p.printf("%-24s %s\n", label+":", value)
}

func rowPtr[T any](p *printer, label string, v *T) {
	if v == nil {
		return
	}
	p.row(label, fmt.Sprint(*v))
}

// WriteText writes r in the human readable inspect layout.
func WriteText(w io.Writer, r *Report) error {
	p := &printer{w: w}
	p.printf("Pipeline ELF: %s flags=%#x\n", FormatBytes(uint64(r.Size)), r.Flags)
	p.row("gfxip", r.GfxIp)

	p.section("Sections")
	for _, s := range r.Sections {
		p.printf("[%2d] %-24s %-9s off=%-8d size=%-10s align=%d", s.Index, s.Name, s.Type, s.Offset, FormatBytes(s.Size), s.Align)
		if s.Link != "" {
			p.printf(" link=%s", s.Link)
		}
		if s.Info != "" {
			p.printf(" info=%s", s.Info)
		}
		p.printf("\n")
	}

	p.section("Symbols")
	if len(r.Symbols) == 0 {
		p.printf("(none)\n")
	}
	for _, s := range r.Symbols {
		tag := "generic"
		if s.Pipeline {
			tag = "pipeline"
		}
		p.printf("%-32s %-8s %-7s %-11s value=%#x size=%d\n", s.Name, tag, s.Kind, s.Section, s.Value, s.Size)
	}

	if len(r.Relocations) > 0 {
		p.section("Relocations")
		for _, rel := range r.Relocations {
			p.printf("%-11s %-6s off=%#-8x %-10s %s%+d\n", rel.Section, rel.Target, rel.Offset, rel.Type, rel.Symbol, rel.Addend)
		}
	}

	p.section("Metadata")
	switch {
	case r.MetadataError != "":
		p.printf("(metadata decode error: %s)\n", r.MetadataError)
	case r.Metadata == nil:
		p.printf("(no metadata note)\n")
	default:
		writeMetadata(p, r.Metadata)
	}
	return p.err
}

func writeMetadata(p *printer, m *Metadata) {
	p.row("version", m.Version)
	rowPtr(p, "name", m.Name)
	rowPtr(p, "type", m.Type)
	if m.InternalPipelineHash != nil {
		p.row("internal_pipeline_hash", fmt.Sprintf("%#x %#x", m.InternalPipelineHash[0], m.InternalPipelineHash[1]))
	}
	rowPtr(p, "user_data_limit", m.UserDataLimit)
	rowPtr(p, "spill_threshold", m.SpillThreshold)
	rowPtr(p, "api", m.Api)

	for _, name := range sortedKeys(m.Shaders) {
		sh := m.Shaders[name]
		p.row("shader."+name, strings.Join(sh.HardwareMapping, ","))
	}
	for _, name := range sortedKeys(m.Stages) {
		st := m.Stages[name]
		prefix := "stage." + name + "."
		rowPtr(p, prefix+"entry_point", st.EntryPoint)
		rowPtr(p, prefix+"vgpr_count", st.VgprCount)
		rowPtr(p, prefix+"sgpr_count", st.SgprCount)
		rowPtr(p, prefix+"wavefront_size", st.WavefrontSize)
		rowPtr(p, prefix+"lds_size", st.LdsSize)
		rowPtr(p, prefix+"scratch_memory_size", st.ScratchMemorySize)
		if d := st.ThreadgroupDimensions; d != nil {
			p.row(prefix+"threadgroup", fmt.Sprintf("%dx%dx%d", d[0], d[1], d[2]))
		}
	}
	for _, g := range sortedKeys(m.Registers) {
		fields := m.Registers[g]
		for _, f := range sortedKeys(fields) {
			p.row("reg."+g+"."+f, fmt.Sprintf("%#x", fields[f]))
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func FormatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
