// Package snippet binds a parsed snippet tree to a live buffer and moves the
// user between its fill points.
package snippet

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/buffer"
	"github.com/walteh/gosnippet/pkg/grammar"
	"github.com/walteh/gosnippet/pkg/indent"
	"github.com/walteh/gosnippet/pkg/node"
	"github.com/walteh/gosnippet/pkg/position"
)

type Dir int

const (
	Next Dir = 1
	Prev Dir = -1
)

type Options struct {
	// Outer is the active snippet this one is expanded inside of.
	Outer *Snippet
	// PrefixLen is how many units before the cursor the expansion replaces.
	PrefixLen int
	Resolver  node.Resolver
	// Indent, when set, fits the body to the indentation of the cursor line.
	Indent *indent.Options
}

// Snippet is one expansion living in a buffer.
type Snippet struct {
	buf   buffer.Buffer
	root  *node.Snippet
	nodes []node.Jumpable
	index int
	track buffer.TrackID

	outer *Snippet
	// tail spans from the end of this expansion to the end of the outer
	// node it was expanded in.
	tail position.Range
}

// Create parses body, writes its text over the prefix before the cursor and
// focuses the first fill point. Nothing is written when body does not parse.
func Create(ctx context.Context, buf buffer.Buffer, body string, opts Options) (*Snippet, error) {
	cursor, err := buf.Cursor(ctx)
	if err != nil {
		return nil, errors.Errorf("reading cursor: %w", err)
	}

	if opts.Indent != nil {
		line, err := buf.Text(ctx, position.NewRange(cursor.Line, 0, cursor.Line, 1<<30))
		if err != nil {
			return nil, errors.Errorf("reading cursor line: %w", err)
		}
		body = indent.Adjust(body, indent.Base(line), *opts.Indent)
	}

	root, nodes, err := prepare(ctx, body, opts.Resolver)
	if err != nil {
		return nil, err
	}

	start := position.Place{Line: cursor.Line, Character: max(cursor.Character-opts.PrefixLen, 0)}
	focus := node.NoFocus
	if len(nodes) > 0 {
		focus = nodes[0].Tabstop()
	}

	if err := buf.LinePatch(ctx, opts.PrefixLen, 0, root.Text(focus)); err != nil {
		return nil, errors.Errorf("inserting snippet: %w", err)
	}
	if _, err := root.UpdateRange(ctx, buf, start, focus); err != nil {
		return nil, errors.Errorf("laying out snippet: %w", err)
	}

	s := &Snippet{buf: buf, root: root, nodes: nodes, outer: opts.Outer}
	if s.outer != nil {
		s.tail = position.ShiftRange(position.Range{Start: cursor, End: s.outer.CurrentNode().Range().End}, root.Range().End)
	}

	zerolog.Ctx(ctx).Debug().
		Int("tabstops", len(nodes)).
		Stringer("range", root.Range()).
		Bool("nested", s.outer != nil).
		Msg("snippet created")

	if len(nodes) == 0 {
		return s, nil
	}
	s.index = -1
	if i := s.next(Next); i >= 0 {
		s.index = i
	} else {
		s.index = 0
	}
	if err := s.focus(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Render returns the text body expands to, without any buffer.
func Render(ctx context.Context, body string, resolver node.Resolver) (string, error) {
	root, _, err := prepare(ctx, body, resolver)
	if err != nil {
		return "", err
	}
	return root.Text(node.NoFocus), nil
}

func prepare(ctx context.Context, body string, resolver node.Resolver) (*node.Snippet, []node.Jumpable, error) {
	root, err := grammar.Parse(body)
	if err != nil {
		return nil, nil, errors.Errorf("parsing snippet: %w", err)
	}
	if err := root.ResolveVariables(ctx, resolver); err != nil {
		return nil, nil, err
	}
	reg := node.NewRegistry()
	for _, j := range root.Jumpables() {
		reg.Add(j)
	}
	return root, reg.Ordered(), nil
}

func (s *Snippet) Root() *node.Snippet { return s.root }

// Nodes returns the canonical fill points in jump order.
func (s *Snippet) Nodes() []node.Jumpable { return s.nodes }

func (s *Snippet) Index() int { return s.index }

func (s *Snippet) Outer() *Snippet { return s.outer }

// Interactive reports whether there is a fill point besides the final $0.
func (s *Snippet) Interactive() bool {
	return len(s.nodes) > 0 && s.nodes[0].Tabstop() != 0
}

// CurrentNode panics when the snippet has no fill points.
func (s *Snippet) CurrentNode() node.Jumpable {
	if len(s.nodes) == 0 {
		panic("snippet: no jumpable nodes")
	}
	return s.nodes[s.index]
}

// Focus is the tabstop being edited.
func (s *Snippet) Focus() int {
	return s.CurrentNode().Tabstop()
}

// Update reads what the user typed into the current node back from the
// buffer and lays the tree out again, syncing mirrors.
func (s *Snippet) Update(ctx context.Context, focus int) error {
	n := s.CurrentNode()
	regions, err := s.buf.Tracked(ctx, s.track)
	if err != nil {
		return errors.Errorf("reading tracked region: %w", err)
	}
	if len(regions) == 0 {
		return errors.WithStack(buffer.ErrTrackedRegionLost)
	}
	r := regions[0].Range
	text, err := s.buf.Text(ctx, r)
	if err != nil {
		return errors.Errorf("reading tabstop %d: %w", n.Tabstop(), err)
	}
	if _, typed := n.Input(); typed || n.Text(focus) != text {
		n.SetInput(r, text)
	}
	if _, err := s.root.UpdateRange(ctx, s.buf, s.root.Range().Start, focus); err != nil {
		return errors.Errorf("updating snippet: %w", err)
	}
	return s.retrack(ctx)
}

// Jumpable reports whether a jump in dir can succeed here or in an outer
// snippet.
func (s *Snippet) Jumpable(dir Dir) bool {
	if s.next(dir) >= 0 {
		return true
	}
	return s.outer != nil && s.outer.Jumpable(dir)
}

// Jump moves to the next live fill point in dir. It returns false at either
// end so the caller can continue in the outer snippet.
func (s *Snippet) Jump(ctx context.Context, dir Dir) (bool, error) {
	i := s.next(dir)
	if i < 0 {
		return false, nil
	}
	zerolog.Ctx(ctx).Debug().Int("from", s.index).Int("to", i).Msg("jumping")
	s.index = i
	return true, s.focus(ctx)
}

func (s *Snippet) next(dir Dir) int {
	for i := s.index + int(dir); i >= 0 && i < len(s.nodes); i += int(dir) {
		if s.nodes[i].Alive() {
			return i
		}
	}
	return -1
}

func (s *Snippet) Choosable() bool {
	return len(s.nodes) > 0 && s.CurrentNode().Kind() == node.KindChoice
}

// Choice cycles the current choice in dir. It does nothing on other nodes.
func (s *Snippet) Choice(ctx context.Context, dir Dir) error {
	if !s.Choosable() {
		return nil
	}
	c := s.CurrentNode().(*node.Choice)
	c.Select(int(dir))
	return s.focus(ctx)
}

// Commit lays the tree out with every transform applied, as when the user
// leaves the snippet.
func (s *Snippet) Commit(ctx context.Context) error {
	if len(s.nodes) == 0 {
		return nil
	}
	return s.Update(ctx, node.NoFocus)
}

// Absorb makes the current node cover the text of inner, a finished
// expansion made inside it, and updates.
func (s *Snippet) Absorb(ctx context.Context, inner *Snippet) error {
	n := s.CurrentNode()
	r := position.Range{
		Start: n.Range().Start,
		End:   position.ShiftRange(inner.tail, inner.root.Range().End).End,
	}
	if err := s.buf.ClearTracked(ctx); err != nil {
		return errors.Errorf("clearing tracked regions: %w", err)
	}
	id, err := s.buf.Track(ctx, r, 0)
	if err != nil {
		return errors.Errorf("tracking %s: %w", r, err)
	}
	s.track = id
	return s.Update(ctx, s.Focus())
}

// focus lays the tree out for the current node, tracks it and selects it.
func (s *Snippet) focus(ctx context.Context) error {
	n := s.CurrentNode()
	if _, err := s.root.UpdateRange(ctx, s.buf, s.root.Range().Start, n.Tabstop()); err != nil {
		return errors.Errorf("updating snippet: %w", err)
	}
	if err := s.retrack(ctx); err != nil {
		return err
	}
	if err := s.buf.Select(ctx, n.Range()); err != nil {
		return errors.Errorf("selecting tabstop %d: %w", n.Tabstop(), err)
	}
	return nil
}

func (s *Snippet) retrack(ctx context.Context) error {
	if err := s.buf.ClearTracked(ctx); err != nil {
		return errors.Errorf("clearing tracked regions: %w", err)
	}
	id, err := s.buf.Track(ctx, s.CurrentNode().Range(), 0)
	if err != nil {
		return errors.Errorf("tracking tabstop %d: %w", s.Focus(), err)
	}
	s.track = id
	return nil
}
