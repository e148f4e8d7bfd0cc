package buffer

import (
	"context"
	"sort"
	"strings"
	"sync"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/position"
)

var _ Buffer = (*Memory)(nil)

// Memory is a Buffer held in memory. It stands in for an editor in tests,
// the render command and the headless server.
type Memory struct {
	mu        sync.Mutex
	lines     []string
	cursor    position.Place
	selection *position.Range
	regions   map[TrackID]position.Range
	nextID    TrackID

	path          string
	registers     map[string]string
	commentString string
	comments      string
}

type MemoryOption func(*Memory)

func WithPath(path string) MemoryOption {
	return func(m *Memory) { m.path = path }
}

func WithRegister(name, value string) MemoryOption {
	return func(m *Memory) { m.registers[name] = value }
}

// WithCommentString sets a printf-style line comment template such as "// %s".
func WithCommentString(cs string) MemoryOption {
	return func(m *Memory) { m.commentString = cs }
}

// WithComments sets comment leaders in vim's 'comments' format, e.g. "s1:/*,mb:*,ex:*/,://".
func WithComments(comments string) MemoryOption {
	return func(m *Memory) { m.comments = comments }
}

func NewMemory(text string, opts ...MemoryOption) *Memory {
	m := &Memory{
		lines:     position.SplitLines(text),
		regions:   map[TrackID]position.Range{},
		registers: map[string]string{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.lines, "\n")
}

func (m *Memory) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

// Selection returns the selected range, if any.
func (m *Memory) Selection() (position.Range, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selection == nil {
		return position.Range{}, false
	}
	return *m.selection, true
}

func (m *Memory) Cursor(_ context.Context) (position.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

func (m *Memory) SetCursor(_ context.Context, p position.Place) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkPlace(p); err != nil {
		return err
	}
	m.cursor = m.clamp(p)
	m.selection = nil
	return nil
}

func (m *Memory) Text(_ context.Context, r position.Range) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRange(r); err != nil {
		return "", err
	}
	r = position.Range{Start: m.clamp(r.Start), End: m.clamp(r.End)}
	if r.Start.Line == r.End.Line {
		return position.SliceUTF16(m.lines[r.Start.Line], r.Start.Character, r.End.Character), nil
	}
	var sb strings.Builder
	first := m.lines[r.Start.Line]
	sb.WriteString(position.SliceUTF16(first, r.Start.Character, position.UTF16Len(first)))
	for l := r.Start.Line + 1; l < r.End.Line; l++ {
		sb.WriteByte('\n')
		sb.WriteString(m.lines[l])
	}
	sb.WriteByte('\n')
	sb.WriteString(position.SliceUTF16(m.lines[r.End.Line], 0, r.End.Character))
	return sb.String(), nil
}

// ReplaceText leaves the cursor alone unless it sits on a line below the
// replaced range, which it follows.
func (m *Memory) ReplaceText(_ context.Context, r position.Range, lines []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRange(r); err != nil {
		return err
	}
	r = position.Range{Start: m.clamp(r.Start), End: m.clamp(r.End)}
	end := m.replace(r, lines)
	if m.cursor.Line > r.End.Line {
		m.cursor.Line += end.Line - r.End.Line
	}
	m.cursor = m.clamp(m.cursor)
	return nil
}

func (m *Memory) LinePatch(_ context.Context, before, after int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	line := m.lines[m.cursor.Line]
	width := position.UTF16Len(line)
	from := max(m.cursor.Character-before, 0)
	to := min(m.cursor.Character+after, width)
	r := position.Range{
		Start: position.Place{Line: m.cursor.Line, Character: from},
		End:   position.Place{Line: m.cursor.Line, Character: to},
	}
	m.cursor = m.replace(r, position.SplitLines(text))
	m.selection = nil
	return nil
}

func (m *Memory) Track(_ context.Context, r position.Range, id TrackID) (TrackID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRange(r); err != nil {
		return 0, err
	}
	if id == 0 {
		m.nextID++
		id = m.nextID
	}
	m.regions[id] = r
	return id, nil
}

func (m *Memory) Tracked(_ context.Context, id TrackID) ([]Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != 0 {
		r, ok := m.regions[id]
		if !ok {
			return nil, nil
		}
		return []Region{{ID: id, Range: r}}, nil
	}
	out := make([]Region, 0, len(m.regions))
	for rid, r := range m.regions {
		out = append(out, Region{ID: rid, Range: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ClearTracked(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions = map[TrackID]position.Range{}
	return nil
}

func (m *Memory) Select(_ context.Context, r position.Range) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRange(r); err != nil {
		return err
	}
	if r.IsEmpty() {
		m.cursor = m.clamp(r.Start)
		m.selection = nil
		return nil
	}
	sel := r
	m.selection = &sel
	m.cursor = m.clamp(r.End)
	return nil
}

// Type behaves like a user typing text: it replaces the selection, or
// inserts at the cursor, and leaves the cursor after the text.
func (m *Memory) Type(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := position.Range{Start: m.cursor, End: m.cursor}
	if m.selection != nil {
		r = *m.selection
		m.selection = nil
	}
	m.cursor = m.replace(r, position.SplitLines(text))
}

// Backspace deletes n units before the cursor on the cursor line, or the
// selection when there is one.
func (m *Memory) Backspace(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := position.Range{
		Start: position.Place{Line: m.cursor.Line, Character: max(m.cursor.Character-n, 0)},
		End:   m.cursor,
	}
	if m.selection != nil {
		r = *m.selection
		m.selection = nil
	}
	m.cursor = m.replace(r, []string{""})
}

// replace swaps r for lines and returns the end of the inserted text.
// Tracked regions follow the edit.
func (m *Memory) replace(r position.Range, lines []string) position.Place {
	first := m.lines[r.Start.Line]
	last := m.lines[r.End.Line]
	prefix := first[:position.UTF16ToByte(first, r.Start.Character)]
	suffix := last[position.UTF16ToByte(last, r.End.Character):]

	repl := append([]string(nil), lines...)
	if len(repl) == 0 {
		repl = []string{""}
	}
	end := position.CalcRange(r.Start, strings.Join(repl, "\n")).End
	repl[0] = prefix + repl[0]
	repl[len(repl)-1] += suffix

	next := make([]string, 0, len(m.lines)-(r.End.Line-r.Start.Line)+len(repl)-1)
	next = append(next, m.lines[:r.Start.Line]...)
	next = append(next, repl...)
	next = append(next, m.lines[r.End.Line+1:]...)
	m.lines = next

	for id, reg := range m.regions {
		m.regions[id] = position.Range{
			Start: follow(reg.Start, r, end, false),
			End:   follow(reg.End, r, end, true),
		}
	}
	return end
}

// follow moves p across the replacement of r by text ending at end. A point
// inside or at the edge of r lands on the insertion's start, or its end when
// it has right gravity.
func follow(p position.Place, r position.Range, end position.Place, right bool) position.Place {
	if p.Before(r.Start) {
		return p
	}
	if r.End.Before(p) {
		if p.Line == r.End.Line {
			return position.Place{Line: end.Line, Character: end.Character + p.Character - r.End.Character}
		}
		return position.Place{Line: p.Line + end.Line - r.End.Line, Character: p.Character}
	}
	if right {
		return end
	}
	return r.Start
}

func (m *Memory) checkPlace(p position.Place) error {
	if p.Line < 0 || p.Line >= len(m.lines) || p.Character < 0 {
		return errors.Errorf("place %s outside buffer of %d lines", p, len(m.lines))
	}
	return nil
}

func (m *Memory) checkRange(r position.Range) error {
	if !r.IsValid() {
		return errors.Errorf("invalid range %s", r)
	}
	if err := m.checkPlace(r.Start); err != nil {
		return err
	}
	return m.checkPlace(r.End)
}

func (m *Memory) clamp(p position.Place) position.Place {
	if p.Line >= len(m.lines) {
		p.Line = len(m.lines) - 1
	}
	if w := position.UTF16Len(m.lines[p.Line]); p.Character > w {
		p.Character = w
	}
	return p
}
