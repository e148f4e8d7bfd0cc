// Package indent fits snippet bodies to the indentation of the line they are
// expanded on.
package indent

import (
	"strconv"
	"strings"

	"github.com/editorconfig/editorconfig-core-go/v2"
	"gitlab.com/tozd/go/errors"
)

type Options struct {
	ExpandTab  bool `json:"expandtab" yaml:"expandtab" hcl:"expandtab,optional"`
	ShiftWidth int  `json:"shiftwidth" yaml:"shiftwidth" hcl:"shiftwidth,optional"`
	TabStop    int  `json:"tabstop" yaml:"tabstop" hcl:"tabstop,optional"`
}

var Default = Options{TabStop: 8}

// Unit is one level of indentation.
func (o Options) Unit() string {
	if !o.ExpandTab {
		return "\t"
	}
	width := o.ShiftWidth
	if width == 0 {
		width = o.TabStop
	}
	return strings.Repeat(" ", width)
}

// Base returns the leading whitespace of line.
func Base(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// Adjust rewrites body for a line indented with base: leading tabs become
// the indent unit, every line after the first is prefixed with base and
// blank interior lines are emptied.
func Adjust(body, base string, o Options) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	lines := strings.Split(body, "\n")
	unit := o.Unit()
	for i, line := range lines {
		if unit != "\t" {
			tabs := len(line) - len(strings.TrimLeft(line, "\t"))
			line = strings.Repeat(unit, tabs) + line[tabs:]
		}
		if i > 0 {
			line = base + line
		}
		if i > 0 && i < len(lines)-1 && strings.TrimSpace(line) == "" {
			line = ""
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

// TrimBaseIndent removes the indentation shared by every non-empty line of
// register text. Characterwise text (no trailing newline) ignores its first
// line, which starts mid-line.
func TrimBaseIndent(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	charwise := !strings.HasSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\n")

	lines := strings.Split(text, "\n")
	base := ""
	for i, line := range lines {
		if (charwise && i == 0) || line == "" {
			continue
		}
		if ind := Base(line); base == "" || len(ind) < len(base) {
			base = ind
		}
	}
	if base == "" {
		return text
	}
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, base)
	}
	return strings.Join(lines, "\n")
}

// FromEditorConfig reads the indentation settings that apply to path. ok is
// false when no .editorconfig sets an indent style.
func FromEditorConfig(path string, fallback Options) (Options, bool, error) {
	def, err := editorconfig.GetDefinitionForFilename(path)
	if err != nil {
		return fallback, false, errors.Errorf("reading editorconfig for %s: %w", path, err)
	}
	opts := fallback
	found := false
	switch def.IndentStyle {
	case "space":
		opts.ExpandTab = true
		found = true
	case "tab":
		opts.ExpandTab = false
		found = true
	}
	if n, err := strconv.Atoi(def.IndentSize); err == nil && n > 0 {
		opts.ShiftWidth = n
		found = true
	}
	if def.TabWidth > 0 {
		opts.TabStop = def.TabWidth
	}
	return opts, found, nil
}
