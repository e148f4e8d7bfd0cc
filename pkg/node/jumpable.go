package node

import (
	"context"
	"sort"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/position"
)

// Jumpable is a numbered fill point: Tabstop, Placeholder or Choice.
type Jumpable interface {
	Node
	Tabstop() int
	// Priority decides which of several nodes sharing a tabstop is canonical.
	Priority() int
	// Canonical is the node owning this tabstop's text. It is the node itself
	// unless the node is a mirror.
	Canonical() Jumpable
	IsMirror() bool
	Input() (string, bool)
	// SetInput records what the user typed into the node and where it lives.
	SetInput(r position.Range, text string)
	ClearInput()
	// Alive reports whether the node is still rendered, i.e. no enclosing
	// fill point has been overwritten or mirrored.
	Alive() bool

	bind(reg *Registry)
}

type jumpable struct {
	base
	self     Jumpable
	tabstop  int
	input    string
	hasInput bool
	reg      *Registry
}

func (j *jumpable) Tabstop() int { return j.tabstop }

func (j *jumpable) bind(reg *Registry) { j.reg = reg }

func (j *jumpable) Canonical() Jumpable {
	if j.reg == nil {
		return j.self
	}
	if c := j.reg.Canonical(j.tabstop); c != nil {
		return c
	}
	return j.self
}

func (j *jumpable) IsMirror() bool {
	return j.Canonical() != j.self
}

func (j *jumpable) Input() (string, bool) {
	return j.input, j.hasInput
}

func (j *jumpable) SetInput(r position.Range, text string) {
	j.input = text
	j.hasInput = true
	j.setRange(r)
}

func (j *jumpable) ClearInput() {
	j.input = ""
	j.hasInput = false
}

func (j *jumpable) Alive() bool {
	for p := j.parent; p != nil; p = p.Parent() {
		switch v := p.(type) {
		case Jumpable:
			if _, typed := v.Input(); typed || v.IsMirror() {
				return false
			}
		case *Variable:
			if v.Resolved() {
				return false
			}
		}
	}
	return true
}

// mirrored renders the canonical node's text, or "" when the canonical node
// encloses this one.
func (j *jumpable) mirrored(focus int) string {
	c := j.Canonical()
	for p := j.parent; p != nil; p = p.Parent() {
		if p == Node(c) {
			return ""
		}
	}
	return c.Text(focus)
}

// sync lays out a node whose text is not made of its children. When the
// buffer still holds different text at the node's previous extent, the new
// text is written over it and a cursor sitting after it is carried along.
func (j *jumpable) sync(ctx context.Context, ed Editor, start position.Place, text string) (position.Place, error) {
	if ed != nil && j.ranged {
		old := position.ShiftRange(j.rng, start)
		current, err := ed.Text(ctx, old)
		if err != nil {
			return start, errors.Errorf("reading tabstop %d at %s: %w", j.tabstop, old, err)
		}
		if current != text {
			if err := j.overwrite(ctx, ed, old, text); err != nil {
				return start, err
			}
		}
	}
	return j.setRange(position.CalcRange(start, text)), nil
}

func (j *jumpable) overwrite(ctx context.Context, ed Editor, old position.Range, text string) error {
	cursor, err := ed.Cursor(ctx)
	if err != nil {
		return errors.Errorf("reading cursor: %w", err)
	}
	lines := position.SplitLines(text)
	if err := ed.ReplaceText(ctx, old, lines); err != nil {
		return errors.Errorf("writing tabstop %d at %s: %w", j.tabstop, old, err)
	}
	if cursor.Line != old.End.Line || cursor.Character < old.End.Character {
		return nil
	}
	spanned := old.End.Line - old.Start.Line
	last := lines[len(lines)-1]
	fixed := position.Place{
		Line:      cursor.Line - spanned + len(lines) - 1,
		Character: cursor.Character - old.End.Character + position.UTF16Len(last),
	}
	if len(lines) == 1 {
		fixed.Character += old.Start.Character
	}
	if err := ed.SetCursor(ctx, fixed); err != nil {
		return errors.Errorf("moving cursor to %s: %w", fixed, err)
	}
	return nil
}

// Tabstop is $n or ${n}, optionally reshaped by a Transform.
type Tabstop struct {
	jumpable
	Transform *Transform
}

func NewTabstop(tabstop int, transform *Transform) *Tabstop {
	t := &Tabstop{Transform: transform}
	t.self = t
	t.tabstop = tabstop
	return t
}

func (t *Tabstop) Kind() Kind { return KindTabstop }

func (t *Tabstop) Priority() int {
	if t.Transform != nil {
		return -1
	}
	return 0
}

func (t *Tabstop) Text(focus int) string {
	if t.hasInput {
		return t.input
	}
	if !t.IsMirror() {
		return ""
	}
	text := t.mirrored(focus)
	if t.Transform != nil && focus != t.tabstop {
		text = t.Transform.Apply(text)
	}
	return text
}

func (t *Tabstop) UpdateRange(ctx context.Context, ed Editor, start position.Place, focus int) (position.Place, error) {
	return t.sync(ctx, ed, start, t.Text(focus))
}

// Placeholder is ${n:default}. The default children are rendered until the
// user types over them.
type Placeholder struct {
	jumpable
	Children []Node
}

func NewPlaceholder(tabstop int, children []Node) *Placeholder {
	p := &Placeholder{Children: children}
	p.self = p
	p.tabstop = tabstop
	adopt(p, children)
	return p
}

func (p *Placeholder) Kind() Kind { return KindPlaceholder }

func (p *Placeholder) Priority() int {
	if len(p.Children) > 0 {
		return 1
	}
	return 0
}

func (p *Placeholder) Text(focus int) string {
	if p.hasInput {
		return p.input
	}
	if p.IsMirror() {
		return p.mirrored(focus)
	}
	return renderAll(p.Children, focus)
}

func (p *Placeholder) UpdateRange(ctx context.Context, ed Editor, start position.Place, focus int) (position.Place, error) {
	if p.hasInput || p.IsMirror() {
		return p.sync(ctx, ed, start, p.Text(focus))
	}
	end, err := layoutAll(ctx, ed, p.Children, start, focus)
	if err != nil {
		return end, err
	}
	return p.setRange(position.Range{Start: start, End: end}), nil
}

// Choice is ${n|a,b,c|}.
type Choice struct {
	jumpable
	Items []string
	index int
}

func NewChoice(tabstop int, items []string) *Choice {
	c := &Choice{Items: items}
	c.self = c
	c.tabstop = tabstop
	return c
}

func (c *Choice) Kind() Kind { return KindChoice }

func (c *Choice) Priority() int { return 1 }

func (c *Choice) Index() int { return c.index }

// Select moves the selection by dir items, wrapping around, and discards
// anything typed over the choice.
func (c *Choice) Select(dir int) {
	c.ClearInput()
	n := len(c.Items)
	if n == 0 {
		return
	}
	c.index = ((c.index+dir)%n + n) % n
}

func (c *Choice) Text(focus int) string {
	if c.hasInput {
		return c.input
	}
	if c.IsMirror() {
		return c.mirrored(focus)
	}
	if c.index < len(c.Items) {
		return c.Items[c.index]
	}
	return ""
}

func (c *Choice) UpdateRange(ctx context.Context, ed Editor, start position.Place, focus int) (position.Place, error) {
	return c.sync(ctx, ed, start, c.Text(focus))
}

// Registry maps each tabstop to its canonical node.
type Registry struct {
	canonical map[int]Jumpable
}

func NewRegistry() *Registry {
	return &Registry{canonical: map[int]Jumpable{}}
}

// Add registers j. The first node seen for a tabstop is canonical until a
// node with a strictly higher priority arrives.
func (r *Registry) Add(j Jumpable) {
	j.bind(r)
	cur, ok := r.canonical[j.Tabstop()]
	if !ok || j.Priority() > cur.Priority() {
		r.canonical[j.Tabstop()] = j
	}
}

func (r *Registry) Canonical(tabstop int) Jumpable {
	return r.canonical[tabstop]
}

// Ordered returns the canonical nodes by ascending tabstop with 0 last.
func (r *Registry) Ordered() []Jumpable {
	out := make([]Jumpable, 0, len(r.canonical))
	for _, j := range r.canonical {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		ta, tb := out[a].Tabstop(), out[b].Tabstop()
		if ta == 0 || tb == 0 {
			return tb == 0 && ta != 0
		}
		return ta < tb
	})
	return out
}
