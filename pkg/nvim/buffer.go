// Package nvim hosts snippet sessions inside Neovim. Neovim counts columns
// in bytes; everything crossing into the session is converted to UTF-16.
package nvim

import (
	"context"
	_ "embed"
	"strings"

	"github.com/neovim/go-client/nvim"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/buffer"
	"github.com/walteh/gosnippet/pkg/indent"
	"github.com/walteh/gosnippet/pkg/position"
	"github.com/walteh/gosnippet/pkg/variable"
)

// Namespace holds the extmark tracking the node being edited.
const Namespace = "gosnippet_jumpable_node"

var (
	_ buffer.Buffer = (*Buffer)(nil)
	_ variable.Env  = (*Buffer)(nil)
)

//go:embed lua/extmarks.lua
var extmarksLua string

//go:embed lua/select.lua
var selectLua string

// Buffer is a Neovim buffer shown in the current window.
type Buffer struct {
	v   *nvim.Nvim
	buf nvim.Buffer
	ns  int
}

func NewBuffer(v *nvim.Nvim, buf nvim.Buffer) (*Buffer, error) {
	ns, err := v.CreateNamespace(Namespace)
	if err != nil {
		return nil, errors.Errorf("creating namespace: %w", err)
	}
	return &Buffer{v: v, buf: buf, ns: ns}, nil
}

func (b *Buffer) ID() nvim.Buffer { return b.buf }

func (b *Buffer) lines(start, end int) ([]string, error) {
	raw, err := b.v.BufferLines(b.buf, start, end, true)
	if err != nil {
		return nil, errors.Errorf("reading lines %d-%d: %w", start, end, err)
	}
	out := make([]string, len(raw))
	for i, l := range raw {
		out[i] = string(l)
	}
	return out, nil
}

func (b *Buffer) line(row int) (string, error) {
	lines, err := b.lines(row, row+1)
	if err != nil {
		return "", err
	}
	return lines[0], nil
}

func (b *Buffer) lineCount() (int, error) {
	n, err := b.v.BufferLineCount(b.buf)
	if err != nil {
		return 0, errors.Errorf("counting lines: %w", err)
	}
	return n, nil
}

// toBytes converts p to a row and byte column, clamping past the last line.
func (b *Buffer) toBytes(p position.Place) (int, int, error) {
	n, err := b.lineCount()
	if err != nil {
		return 0, 0, err
	}
	if p.Line < 0 || p.Character < 0 {
		return 0, 0, errors.Errorf("place %s outside buffer of %d lines", p, n)
	}
	if p.Line >= n {
		p.Line = n - 1
		p.Character = 1 << 30
	}
	l, err := b.line(p.Line)
	if err != nil {
		return 0, 0, err
	}
	return p.Line, position.UTF16ToByte(l, p.Character), nil
}

func (b *Buffer) fromBytes(row, col int) (position.Place, error) {
	l, err := b.line(row)
	if err != nil {
		return position.Place{}, err
	}
	return position.Place{Line: row, Character: position.ByteToUTF16(l, col)}, nil
}

func (b *Buffer) Cursor(_ context.Context) (position.Place, error) {
	pos, err := b.v.WindowCursor(0)
	if err != nil {
		return position.Place{}, errors.Errorf("reading cursor: %w", err)
	}
	return b.fromBytes(pos[0]-1, pos[1])
}

func (b *Buffer) SetCursor(_ context.Context, p position.Place) error {
	row, col, err := b.toBytes(p)
	if err != nil {
		return err
	}
	if err := b.v.SetWindowCursor(0, [2]int{row + 1, col}); err != nil {
		return errors.Errorf("moving cursor to %s: %w", p, err)
	}
	return nil
}

func (b *Buffer) Text(_ context.Context, r position.Range) (string, error) {
	if !r.IsValid() {
		return "", errors.Errorf("invalid range %s", r)
	}
	n, err := b.lineCount()
	if err != nil {
		return "", err
	}
	end := min(r.End.Line, n-1)
	lines, err := b.lines(r.Start.Line, end+1)
	if err != nil {
		return "", err
	}
	if end < r.End.Line {
		r.End = position.Place{Line: end, Character: 1 << 30}
	}
	return sliceLines(lines, r.Start.Character, r.End.Character), nil
}

// sliceLines returns the text between from on the first line and to on the
// last line, in UTF-16 columns.
func sliceLines(lines []string, from, to int) string {
	if len(lines) == 1 {
		return position.SliceUTF16(lines[0], from, to)
	}
	var sb strings.Builder
	first := lines[0]
	sb.WriteString(position.SliceUTF16(first, from, position.UTF16Len(first)))
	for _, l := range lines[1 : len(lines)-1] {
		sb.WriteByte('\n')
		sb.WriteString(l)
	}
	sb.WriteByte('\n')
	sb.WriteString(position.SliceUTF16(lines[len(lines)-1], 0, to))
	return sb.String()
}

func toByteLines(lines []string) [][]byte {
	out := make([][]byte, len(lines))
	for i, l := range lines {
		out[i] = []byte(l)
	}
	return out
}

func (b *Buffer) ReplaceText(_ context.Context, r position.Range, lines []string) error {
	sr, sc, err := b.toBytes(r.Start)
	if err != nil {
		return err
	}
	er, ec, err := b.toBytes(r.End)
	if err != nil {
		return err
	}
	if err := b.v.SetBufferText(b.buf, sr, sc, er, ec, toByteLines(lines)); err != nil {
		return errors.Errorf("replacing %s: %w", r, err)
	}
	return nil
}

func (b *Buffer) LinePatch(ctx context.Context, before, after int, text string) error {
	cur, err := b.Cursor(ctx)
	if err != nil {
		return err
	}
	l, err := b.line(cur.Line)
	if err != nil {
		return err
	}
	from := max(cur.Character-before, 0)
	to := min(cur.Character+after, position.UTF16Len(l))
	if err := b.v.SetBufferText(b.buf, cur.Line, position.UTF16ToByte(l, from), cur.Line, position.UTF16ToByte(l, to), toByteLines(position.SplitLines(text))); err != nil {
		return errors.Errorf("patching line %d: %w", cur.Line, err)
	}
	end := position.CalcRange(position.Place{Line: cur.Line, Character: from}, text).End
	return b.SetCursor(ctx, end)
}

func (b *Buffer) Track(_ context.Context, r position.Range, id buffer.TrackID) (buffer.TrackID, error) {
	sr, sc, err := b.toBytes(r.Start)
	if err != nil {
		return 0, err
	}
	er, ec, err := b.toBytes(r.End)
	if err != nil {
		return 0, err
	}
	opts := map[string]any{
		"end_row":           er,
		"end_col":           ec,
		"right_gravity":     false,
		"end_right_gravity": true,
	}
	if id != 0 {
		opts["id"] = int(id)
	}
	mark, err := b.v.SetBufferExtmark(b.buf, b.ns, sr, sc, opts)
	if err != nil {
		return 0, errors.Errorf("tracking %s: %w", r, err)
	}
	return buffer.TrackID(mark), nil
}

func (b *Buffer) Tracked(_ context.Context, id buffer.TrackID) ([]buffer.Region, error) {
	// each mark is {id, row, col, end_row, end_col}
	var marks [][]int
	if err := b.v.ExecLua(extmarksLua, &marks, int(b.buf), b.ns, int(id)); err != nil {
		return nil, errors.Errorf("reading extmarks: %w", err)
	}
	out := make([]buffer.Region, 0, len(marks))
	for _, m := range marks {
		if len(m) != 5 {
			return nil, errors.Errorf("malformed extmark %v", m)
		}
		start, err := b.fromBytes(m[1], m[2])
		if err != nil {
			return nil, err
		}
		end, err := b.fromBytes(m[3], m[4])
		if err != nil {
			return nil, err
		}
		out = append(out, buffer.Region{ID: buffer.TrackID(m[0]), Range: position.Range{Start: start, End: end}})
	}
	return out, nil
}

func (b *Buffer) ClearTracked(_ context.Context) error {
	if err := b.v.ClearBufferNamespace(b.buf, b.ns, 0, -1); err != nil {
		return errors.Errorf("clearing namespace: %w", err)
	}
	return nil
}

// Select puts a non-empty range in select mode, so typing replaces it.
func (b *Buffer) Select(ctx context.Context, r position.Range) error {
	if r.IsEmpty() {
		return b.SetCursor(ctx, r.Start)
	}
	sr, sc, err := b.toBytes(r.Start)
	if err != nil {
		return err
	}
	er, ec, err := b.toBytes(r.End)
	if err != nil {
		return err
	}
	var ok bool
	if err := b.v.ExecLua(selectLua, &ok, int(b.buf), sr, sc, er, ec); err != nil {
		return errors.Errorf("selecting %s: %w", r, err)
	}
	return nil
}

func (b *Buffer) CurrentLine(ctx context.Context) (string, error) {
	cur, err := b.Cursor(ctx)
	if err != nil {
		return "", err
	}
	return b.line(cur.Line)
}

func (b *Buffer) FilePath(_ context.Context) (string, error) {
	name, err := b.v.BufferName(b.buf)
	if err != nil {
		return "", errors.Errorf("reading buffer name: %w", err)
	}
	return name, nil
}

func (b *Buffer) Register(_ context.Context, name string) (string, error) {
	var value string
	if err := b.v.Call("getreg", &value, name); err != nil {
		return "", errors.Errorf("reading register %q: %w", name, err)
	}
	return value, nil
}

func (b *Buffer) option(name string) (string, error) {
	var value string
	if err := b.v.Call("getbufvar", &value, int(b.buf), "&"+name); err != nil {
		return "", errors.Errorf("reading option %s: %w", name, err)
	}
	return value, nil
}

func (b *Buffer) IndentOptions() (indent.Options, error) {
	var raw struct {
		ExpandTab  int `msgpack:"expandtab"`
		ShiftWidth int `msgpack:"shiftwidth"`
		TabStop    int `msgpack:"tabstop"`
	}
	err := b.v.ExecLua(`local bo = vim.bo[...] return { expandtab = bo.expandtab and 1 or 0, shiftwidth = bo.shiftwidth, tabstop = bo.tabstop }`, &raw, int(b.buf))
	if err != nil {
		return indent.Options{}, errors.Errorf("reading indent options: %w", err)
	}
	return indent.Options{ExpandTab: raw.ExpandTab == 1, ShiftWidth: raw.ShiftWidth, TabStop: raw.TabStop}, nil
}

func (b *Buffer) CommentString(_ context.Context) (string, error) {
	return b.option("commentstring")
}

func (b *Buffer) Comments(_ context.Context) (string, error) {
	return b.option("comments")
}
