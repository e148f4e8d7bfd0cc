package node

import (
	"strings"

	"github.com/apparentlymart/go-textseg/v13/textseg"
	"github.com/dlclark/regexp2"
	"github.com/iancoleman/strcase"
	"gitlab.com/tozd/go/errors"
)

type Modifier string

const (
	Upcase     Modifier = "upcase"
	Downcase   Modifier = "downcase"
	Capitalize Modifier = "capitalize"
	Camelcase  Modifier = "camelcase"
	Pascalcase Modifier = "pascalcase"
)

var Modifiers = []Modifier{Upcase, Downcase, Capitalize, Camelcase, Pascalcase}

func (m Modifier) Apply(s string) string {
	switch m {
	case Upcase:
		return strings.ToUpper(s)
	case Downcase:
		return strings.ToLower(s)
	case Capitalize:
		adv, _, err := textseg.ScanGraphemeClusters([]byte(s), true)
		if err != nil || adv == 0 {
			return s
		}
		return strings.ToUpper(s[:adv]) + strings.ToLower(s[adv:])
	case Camelcase:
		return strcase.ToLowerCamel(s)
	case Pascalcase:
		return strcase.ToCamel(s)
	}
	return s
}

// Segment is one piece of a transform replacement: a *Format or a *Text.
type Segment interface {
	segment()
}

// Format renders one capture group of a transform match.
type Format struct {
	Capture  int
	Modifier Modifier
	IfText   string
	ElseText string
}

func (f *Format) segment() {}

// Apply renders the capture. A non-empty capture yields IfText when set and
// the modified capture otherwise; an empty one yields ElseText.
func (f *Format) Apply(capture string) string {
	if capture != "" {
		if f.IfText != "" {
			return f.IfText
		}
		return f.Modifier.Apply(capture)
	}
	return f.ElseText
}

// Transform is a regex substitution applied to a mirror or variable.
type Transform struct {
	Pattern  string
	Flags    string
	Segments []Segment

	re     *regexp2.Regexp
	global bool
}

// NewTransform compiles pattern with the JavaScript-style flags given. The
// g flag replaces every match instead of the first; y and u are accepted
// and ignored.
func NewTransform(pattern string, segments []Segment, flags string) (*Transform, error) {
	opts := regexp2.None
	global := false
	for _, f := range flags {
		switch f {
		case 'g':
			global = true
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'u', 'y':
		default:
			return nil, errors.Errorf("unknown regex flag %q", f)
		}
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, errors.Errorf("compiling pattern %q: %w", pattern, err)
	}
	return &Transform{
		Pattern:  pattern,
		Flags:    flags,
		Segments: segments,
		re:       re,
		global:   global,
	}, nil
}

// NewCaseTransform reshapes the whole text with m.
func NewCaseTransform(m Modifier) *Transform {
	t, err := NewTransform(`^([\s\S]*)$`, []Segment{&Format{Capture: 1, Modifier: m}}, "")
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Transform) Global() bool {
	return t.global
}

// Apply substitutes the first match of the pattern in input, or every match
// with the g flag.
func (t *Transform) Apply(input string) string {
	runes := []rune(input)
	var sb strings.Builder
	last := 0
	m, err := t.re.FindStringMatch(input)
	for err == nil && m != nil {
		sb.WriteString(string(runes[last:m.Index]))
		sb.WriteString(t.expand(m))
		last = m.Index + m.Length
		if !t.global {
			break
		}
		m, err = t.re.FindNextMatch(m)
	}
	if err != nil {
		return input
	}
	sb.WriteString(string(runes[last:]))
	return sb.String()
}

func (t *Transform) expand(m *regexp2.Match) string {
	var sb strings.Builder
	for _, seg := range t.Segments {
		switch s := seg.(type) {
		case *Text:
			sb.WriteString(s.Value)
		case *Format:
			capture := ""
			if g := m.GroupByNumber(s.Capture); g != nil && len(g.Captures) > 0 {
				capture = g.String()
			}
			sb.WriteString(s.Apply(capture))
		}
	}
	return sb.String()
}
