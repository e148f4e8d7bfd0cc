// Package node is the tree a snippet body parses into. Every node renders its
// current text and keeps the buffer range that text occupies.
package node

import (
	"context"
	"fmt"
	"strings"

	"github.com/walteh/gosnippet/pkg/position"
)

// NoFocus renders every transform, as on commit.
const NoFocus = -1

type Kind int

const (
	KindText Kind = iota
	KindTabstop
	KindPlaceholder
	KindChoice
	KindVariable
	KindSnippet
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTabstop:
		return "tabstop"
	case KindPlaceholder:
		return "placeholder"
	case KindChoice:
		return "choice"
	case KindVariable:
		return "variable"
	case KindSnippet:
		return "snippet"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Editor is the part of the host buffer the tree writes through while
// keeping mirrors in sync.
type Editor interface {
	Text(ctx context.Context, r position.Range) (string, error)
	ReplaceText(ctx context.Context, r position.Range, lines []string) error
	Cursor(ctx context.Context) (position.Place, error)
	SetCursor(ctx context.Context, p position.Place) error
}

// Node is implemented by every element that can appear in a snippet body.
// The set is closed: Text, Tabstop, Placeholder, Choice, Variable and the
// Snippet root.
type Node interface {
	Kind() Kind
	// Text renders the node. focus is the tabstop being edited; mirrors of
	// that tabstop skip their transform. Pass NoFocus to apply all of them.
	Text(focus int) string
	// Range panics if the range has never been computed.
	Range() position.Range
	HasRange() bool
	Parent() Node
	// UpdateRange lays the node out from start and returns where it ends.
	// ed may be nil when no buffer is attached.
	UpdateRange(ctx context.Context, ed Editor, start position.Place, focus int) (position.Place, error)

	setParent(Node)
}

type base struct {
	rng    position.Range
	ranged bool
	parent Node
}

func (b *base) Range() position.Range {
	if !b.ranged {
		panic("node: range used before it was computed")
	}
	return b.rng
}

func (b *base) HasRange() bool {
	return b.ranged
}

func (b *base) Parent() Node {
	return b.parent
}

func (b *base) setParent(p Node) {
	b.parent = p
}

func (b *base) setRange(r position.Range) position.Place {
	b.rng = r
	b.ranged = true
	return r.End
}

func adopt(parent Node, children []Node) {
	for _, c := range children {
		c.setParent(parent)
	}
}

func renderAll(children []Node, focus int) string {
	var sb strings.Builder
	for _, c := range children {
		sb.WriteString(c.Text(focus))
	}
	return sb.String()
}

func layoutAll(ctx context.Context, ed Editor, children []Node, start position.Place, focus int) (position.Place, error) {
	pos := start
	for _, c := range children {
		var err error
		pos, err = c.UpdateRange(ctx, ed, pos, focus)
		if err != nil {
			return pos, err
		}
	}
	return pos, nil
}

// Text is literal snippet text. It also serves as a literal segment of a
// Transform's replacement.
type Text struct {
	base
	Value string
}

func NewText(value string) *Text {
	return &Text{Value: value}
}

func (t *Text) Kind() Kind { return KindText }

func (t *Text) Text(int) string { return t.Value }

func (t *Text) UpdateRange(_ context.Context, _ Editor, start position.Place, _ int) (position.Place, error) {
	return t.setRange(position.CalcRange(start, t.Value)), nil
}

func (t *Text) segment() {}

// Snippet is the root of a parsed body.
type Snippet struct {
	base
	Children []Node
}

func NewSnippet(children []Node) *Snippet {
	s := &Snippet{Children: children}
	adopt(s, children)
	return s
}

func (s *Snippet) Kind() Kind { return KindSnippet }

func (s *Snippet) Text(focus int) string {
	return renderAll(s.Children, focus)
}

func (s *Snippet) UpdateRange(ctx context.Context, ed Editor, start position.Place, focus int) (position.Place, error) {
	end, err := layoutAll(ctx, ed, s.Children, start, focus)
	if err != nil {
		return end, err
	}
	return s.setRange(position.Range{Start: start, End: end}), nil
}

// Jumpables returns every jumpable node reachable through placeholders and
// unresolved variables, breadth first.
func (s *Snippet) Jumpables() []Jumpable {
	var out []Jumpable
	queue := append([]Node(nil), s.Children...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		switch v := n.(type) {
		case *Placeholder:
			queue = append(queue, v.Children...)
		case *Variable:
			if !v.Resolved() {
				queue = append(queue, v.Children...)
			}
		}
		if j, ok := n.(Jumpable); ok {
			out = append(out, j)
		}
	}
	return out
}

// Walk calls fn for n and every descendant, depth first.
func Walk(n Node, fn func(Node)) {
	fn(n)
	switch v := n.(type) {
	case *Snippet:
		for _, c := range v.Children {
			Walk(c, fn)
		}
	case *Placeholder:
		for _, c := range v.Children {
			Walk(c, fn)
		}
	case *Variable:
		for _, c := range v.Children {
			Walk(c, fn)
		}
	}
}
