// Package config loads gosnippet settings from HCL or YAML.
package config

import (
	"bytes"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/walteh/gosnippet/pkg/buffer"
	"github.com/walteh/gosnippet/pkg/indent"
	"github.com/walteh/gosnippet/pkg/variable"
)

// FileNames are looked up, in order, by LoadDir.
var FileNames = []string{".gosnippet.hcl", ".gosnippet.yaml", ".gosnippet.yml"}

type Config struct {
	// Debounce is how long typing must pause before the snippet is updated,
	// as a Go duration string.
	Debounce string `json:"debounce,omitempty" yaml:"debounce,omitempty" hcl:"debounce,optional"`
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty" hcl:"log_level,optional"`
	// EditorConfig reads indentation from .editorconfig files.
	EditorConfig bool `json:"editorconfig,omitempty" yaml:"editorconfig,omitempty" hcl:"editorconfig,optional"`

	Indent    *indent.Options   `json:"indent,omitempty" yaml:"indent,omitempty" hcl:"indent,block"`
	Comments  *Comments         `json:"comments,omitempty" yaml:"comments,omitempty" hcl:"comments,block"`
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty" hcl:"variables,optional"`
	Overrides []*Override       `json:"overrides,omitempty" yaml:"overrides,omitempty" hcl:"override,block"`

	// dir is where the config was loaded from. Override globs are relative
	// to it.
	dir string
}

// Override replaces settings for documents whose path matches Glob. A glob
// without a slash matches the base name, any other relative glob matches the
// path below the config file's directory.
type Override struct {
	Glob     string          `json:"glob" yaml:"glob" hcl:"glob,label"`
	Indent   *indent.Options `json:"indent,omitempty" yaml:"indent,omitempty" hcl:"indent,block"`
	Comments *Comments       `json:"comments,omitempty" yaml:"comments,omitempty" hcl:"comments,block"`
}

// Comments are the comment leaders of documents that carry no editor
// options of their own.
type Comments struct {
	Line       string `json:"line,omitempty" yaml:"line,omitempty" hcl:"line,optional"`
	BlockStart string `json:"block_start,omitempty" yaml:"block_start,omitempty" hcl:"block_start,optional"`
	BlockEnd   string `json:"block_end,omitempty" yaml:"block_end,omitempty" hcl:"block_end,optional"`
}

func Default() *Config {
	return &Config{LogLevel: "info"}
}

// Load reads the config at path. Files ending in .yaml or .yml are YAML,
// everything else is HCL.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	cfg, err := parse(data, path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// LoadDir loads the first of FileNames found in dir, or the defaults.
func LoadDir(fs afero.Fs, dir string) (*Config, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		ok, err := afero.Exists(fs, p)
		if err != nil {
			return nil, errors.Errorf("checking %s: %w", p, err)
		}
		if ok {
			return Load(fs, p)
		}
	}
	return Default(), nil
}

func parse(data []byte, path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
		return cfg, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": environment(),
		},
	}
	if diags := gohcl.DecodeBody(file.Body, ctx, cfg); diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}
	return cfg, nil
}

// environment exposes the process environment to HCL as env.NAME.
func environment() cty.Value {
	vals := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && validIdent(k) {
			vals[k] = cty.StringVal(v)
		}
	}
	if len(vals) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vals)
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func (c *Config) Validate() error {
	var errs error
	if c.Debounce != "" {
		if d, err := time.ParseDuration(c.Debounce); err != nil {
			errs = multierr.Append(errs, errors.Errorf("debounce: %w", err))
		} else if d < 0 {
			errs = multierr.Append(errs, errors.Errorf("debounce: %s is negative", c.Debounce))
		}
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			errs = multierr.Append(errs, errors.Errorf("log_level: %w", err))
		}
	}
	errs = multierr.Append(errs, validateIndent("indent", c.Indent))
	for i, o := range c.Overrides {
		if !doublestar.ValidatePattern(o.Glob) {
			errs = multierr.Append(errs, errors.Errorf("override %d: invalid glob %q", i, o.Glob))
		}
		errs = multierr.Append(errs, validateIndent(o.Glob+" indent", o.Indent))
	}
	return errs
}

func validateIndent(where string, o *indent.Options) error {
	if o == nil {
		return nil
	}
	var errs error
	if o.ShiftWidth < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: shiftwidth %d is negative", where, o.ShiftWidth))
	}
	if o.TabStop < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: tabstop %d is negative", where, o.TabStop))
	}
	return errs
}

// DebounceDuration is zero when unset or invalid.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Debounce)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// IndentFor resolves the indent options for a document: defaults, then
// .editorconfig when enabled, then every matching override in order.
func (c *Config) IndentFor(file string) (indent.Options, error) {
	opts := indent.Default
	if c.Indent != nil {
		opts = *c.Indent
	}
	if c.EditorConfig && file != "" {
		fromFile, _, err := indent.FromEditorConfig(file, opts)
		if err != nil {
			return opts, err
		}
		opts = fromFile
	}
	for _, o := range c.matching(file) {
		if o.Indent != nil {
			opts = *o.Indent
		}
	}
	return opts, nil
}

// CommentsFor resolves the comment leaders for a document.
func (c *Config) CommentsFor(file string) Comments {
	var out Comments
	if c.Comments != nil {
		out = *c.Comments
	}
	for _, o := range c.matching(file) {
		if o.Comments != nil {
			out = *o.Comments
		}
	}
	return out
}

func (c *Config) matching(file string) []*Override {
	if file == "" {
		return nil
	}
	slashed := filepath.ToSlash(file)
	rel, below := c.relative(file)
	var out []*Override
	for _, o := range c.Overrides {
		glob, name := o.Glob, slashed
		switch {
		case !strings.Contains(glob, "/"):
			name = path.Base(slashed)
		case path.IsAbs(glob):
		case below:
			name = rel
		case c.dir == "":
			// no config file to anchor to
			glob = "**/" + glob
		default:
			continue
		}
		if ok, err := doublestar.Match(glob, name); err == nil && ok {
			out = append(out, o)
		}
	}
	return out
}

// relative returns file relative to the config's directory, and whether it
// lies below it.
func (c *Config) relative(file string) (string, bool) {
	if c.dir == "" {
		return "", false
	}
	rel, err := filepath.Rel(c.dir, file)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// Registry returns the built-in variables plus the configured static ones.
func (c *Config) Registry(opts ...variable.Option) *variable.Registry {
	reg := variable.NewDefaultRegistry(opts...)
	for name, value := range c.Variables {
		reg.Register(name, variable.Static(value))
	}
	return reg
}

// MemoryOptions configures an in-memory buffer with these comment leaders
// in the vim option formats the comment variables read.
func (cm Comments) MemoryOptions() []buffer.MemoryOption {
	var opts []buffer.MemoryOption
	if cm.Line != "" {
		opts = append(opts, buffer.WithCommentString(cm.Line+"%s"))
	}
	var leaders []string
	if cm.BlockStart != "" {
		leaders = append(leaders, "s1:"+cm.BlockStart)
	}
	if cm.BlockEnd != "" {
		leaders = append(leaders, "ex:"+cm.BlockEnd)
	}
	if cm.Line != "" {
		leaders = append(leaders, ":"+cm.Line)
	}
	if len(leaders) > 0 {
		opts = append(opts, buffer.WithComments(strings.Join(leaders, ",")))
	}
	return opts
}
