package snippet_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/buffer"
	"github.com/walteh/gosnippet/pkg/diff"
	"github.com/walteh/gosnippet/pkg/grammar"
	"github.com/walteh/gosnippet/pkg/indent"
	"github.com/walteh/gosnippet/pkg/node"
	"github.com/walteh/gosnippet/pkg/position"
	"github.com/walteh/gosnippet/pkg/snippet"
	"github.com/walteh/gosnippet/pkg/variable"
)

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).WithContext(context.Background())
}

func create(t *testing.T, ctx context.Context, buf *buffer.Memory, body string) *snippet.Snippet {
	t.Helper()
	s, err := snippet.Create(ctx, buf, body, snippet.Options{})
	require.NoError(t, err)
	return s
}

func typeAndUpdate(t *testing.T, ctx context.Context, buf *buffer.Memory, s *snippet.Snippet, text string) {
	t.Helper()
	buf.Type(text)
	require.NoError(t, s.Update(ctx, s.Focus()))
}

func jump(t *testing.T, ctx context.Context, s *snippet.Snippet, dir snippet.Dir) {
	t.Helper()
	ok, err := s.Jump(ctx, dir)
	require.NoError(t, err)
	require.True(t, ok, "jump should succeed")
}

func TestCreateRendersDefaults(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		want       string
		wantCursor position.Place
		wantSelect *position.Range
	}{
		{
			name:       "final tabstop inside call",
			body:       "console.log($0)",
			want:       "console.log()",
			wantCursor: position.Place{Line: 0, Character: 12},
		},
		{
			name:       "placeholder mirrored by bare tabstop",
			body:       "${1:foo} $1",
			want:       "foo foo",
			wantCursor: position.Place{Line: 0, Character: 3},
			wantSelect: &position.Range{End: position.Place{Line: 0, Character: 3}},
		},
		{
			name:       "multi line",
			body:       "if ${1:cond} {\n\t$0\n}",
			want:       "if cond {\n\t\n}",
			wantCursor: position.Place{Line: 0, Character: 7},
			wantSelect: &position.Range{Start: position.Place{Line: 0, Character: 3}, End: position.Place{Line: 0, Character: 7}},
		},
		{
			name:       "no fill points",
			body:       "plain text",
			want:       "plain text",
			wantCursor: position.Place{Line: 0, Character: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			buf := buffer.NewMemory("")
			create(t, ctx, buf, tt.body)

			assert.Equal(t, tt.want, buf.String())
			cur, err := buf.Cursor(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCursor, cur)
			sel, ok := buf.Selection()
			if tt.wantSelect == nil {
				assert.False(t, ok, "nothing selected")
			} else {
				require.True(t, ok)
				assert.Equal(t, *tt.wantSelect, sel)
			}
		})
	}
}

func TestJumpOrder(t *testing.T) {
	tests := []struct {
		body string
		want []int
	}{
		{body: "$1 $2", want: []int{1, 2}},
		{body: "$0 $1", want: []int{1, 0}},
		{body: "$3 $1 ${2:x} $0 $1", want: []int{1, 2, 3, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			ctx := testContext(t)
			s := create(t, ctx, buffer.NewMemory(""), tt.body)

			got := []int{s.Focus()}
			for s.Jumpable(snippet.Next) {
				jump(t, ctx, s, snippet.Next)
				got = append(got, s.Focus())
			}
			assert.Equal(t, tt.want, got)

			ok, err := s.Jump(ctx, snippet.Next)
			require.NoError(t, err)
			assert.False(t, ok, "jump past the last node fails")
		})
	}
}

func TestTypeAndJump(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "$1 $2")

	typeAndUpdate(t, ctx, buf, s, "foo")
	jump(t, ctx, s, snippet.Next)
	typeAndUpdate(t, ctx, buf, s, "bar")

	assert.Equal(t, "foo bar", buf.String())

	jump(t, ctx, s, snippet.Prev)
	assert.Equal(t, 1, s.Focus())
	sel, ok := buf.Selection()
	require.True(t, ok)
	assert.Equal(t, position.NewRange(0, 0, 0, 3), sel)
}

func TestMirrorFollowsCanonical(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "$1 $1")

	typeAndUpdate(t, ctx, buf, s, "bar")
	assert.Equal(t, "bar bar", buf.String())

	buf.Backspace(1)
	require.NoError(t, s.Update(ctx, s.Focus()))
	assert.Equal(t, "ba ba", buf.String())

	cur, err := buf.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, position.Place{Line: 0, Character: 2}, cur)
}

func TestPlaceholderOverwrite(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "${1:foo} $1")

	typeAndUpdate(t, ctx, buf, s, "x")
	assert.Equal(t, "x x", buf.String())
}

func TestMirrorInsideSecondPlaceholder(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "console.log($1${2:, $1})")
	assert.Equal(t, "console.log(, )", buf.String())

	typeAndUpdate(t, ctx, buf, s, "foo")
	assert.Equal(t, "console.log(foo, foo)", buf.String())

	jump(t, ctx, s, snippet.Next)
	sel, ok := buf.Selection()
	require.True(t, ok)
	assert.Equal(t, position.NewRange(0, 15, 0, 20), sel)

	buf.Backspace(1)
	require.NoError(t, s.Update(ctx, s.Focus()))
	assert.Equal(t, "console.log(foo)", buf.String())
}

func TestMultibyte(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "あ$1う$2お")

	typeAndUpdate(t, ctx, buf, s, "い")
	jump(t, ctx, s, snippet.Next)
	typeAndUpdate(t, ctx, buf, s, "え")

	assert.Equal(t, "あいうえお", buf.String())
}

func TestMultiline(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "if ${1:cond} {\n\t$0\n}")

	typeAndUpdate(t, ctx, buf, s, "x > 0")
	jump(t, ctx, s, snippet.Next)

	assert.Equal(t, "if x > 0 {\n\t\n}", buf.String())
	cur, err := buf.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, position.Place{Line: 1, Character: 1}, cur)
}

func TestChoiceCycles(t *testing.T) {
	ctx := testContext(t)

	t.Run("next wraps", func(t *testing.T) {
		buf := buffer.NewMemory("")
		s := create(t, ctx, buf, "${1|foo,bar,baz|}")
		require.True(t, s.Choosable())

		var seen []string
		for range 4 {
			require.NoError(t, s.Choice(ctx, snippet.Next))
			seen = append(seen, buf.String())
		}
		assert.Equal(t, []string{"bar", "baz", "foo", "bar"}, seen)
	})

	t.Run("prev wraps to last", func(t *testing.T) {
		buf := buffer.NewMemory("")
		s := create(t, ctx, buf, "${1|foo,bar,baz|} end")

		require.NoError(t, s.Choice(ctx, snippet.Prev))
		assert.Equal(t, "baz end", buf.String())
		sel, ok := buf.Selection()
		require.True(t, ok)
		assert.Equal(t, position.NewRange(0, 0, 0, 3), sel)
	})

	t.Run("mirrors follow the choice", func(t *testing.T) {
		buf := buffer.NewMemory("")
		s := create(t, ctx, buf, "${1|a,bb|}-$1")
		assert.Equal(t, "a-a", buf.String())

		require.NoError(t, s.Choice(ctx, snippet.Next))
		assert.Equal(t, "bb-bb", buf.String())
	})

	t.Run("not a choice", func(t *testing.T) {
		buf := buffer.NewMemory("")
		s := create(t, ctx, buf, "$1")
		assert.False(t, s.Choosable())
		require.NoError(t, s.Choice(ctx, snippet.Next))
		assert.Equal(t, "", buf.String())
	})
}

func TestTransformOnCommit(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "$1 ${1/(.)(.)(.)/$3$2$1/}")

	typeAndUpdate(t, ctx, buf, s, "abc")
	assert.Equal(t, "abc abc", buf.String(), "transform waits while the tabstop is edited")

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, "abc cba", buf.String())
}

func TestTransformOnJump(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "$1 ${1/(.)(.)(.)/$3$2$1/} $2")

	typeAndUpdate(t, ctx, buf, s, "abc")
	jump(t, ctx, s, snippet.Next)
	typeAndUpdate(t, ctx, buf, s, "foo")

	assert.Equal(t, "abc cba foo", buf.String())
}

func TestCaseTransformAndGlobalFlag(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "$1 ${1:/upcase} ${1/o/0/g}")

	typeAndUpdate(t, ctx, buf, s, "foo")
	require.NoError(t, s.Commit(ctx))

	assert.Equal(t, "foo FOO f00", buf.String())
}

func TestUpdateIsIdempotent(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "${1:a} ${2:b $1} $1")

	typeAndUpdate(t, ctx, buf, s, "xy")
	first := buf.String()
	firstRange := s.Root().Range()

	require.NoError(t, s.Update(ctx, s.Focus()))
	if d := diff.Text(first, buf.String()); d != "" {
		t.Fatal(d)
	}
	assert.Equal(t, firstRange, s.Root().Range())

	require.NoError(t, s.Update(ctx, s.Focus()))
	assert.Equal(t, first, buf.String())
	assert.Equal(t, "xy b xy xy", first)
}

func TestUpdateWithoutTypingKeepsDefaults(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "${1:a ${2:b}} $3")

	require.NoError(t, s.Update(ctx, s.Focus()))
	jump(t, ctx, s, snippet.Next)
	assert.Equal(t, 2, s.Focus(), "nested placeholder is still reachable")
}

func TestJumpSkipsOverwrittenPlaceholderChildren(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	s := create(t, ctx, buf, "${1:a ${2:b}} $3")

	typeAndUpdate(t, ctx, buf, s, "z")
	jump(t, ctx, s, snippet.Next)

	assert.Equal(t, 3, s.Focus())
	assert.Equal(t, "z ", buf.String())
}

func TestParseErrorLeavesBufferUntouched(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("keep me")
	require.NoError(t, buf.SetCursor(ctx, position.Place{Line: 0, Character: 4}))

	_, err := snippet.Create(ctx, buf, "${1:foo", snippet.Options{PrefixLen: 2})
	require.Error(t, err)

	var perr *grammar.ParseError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, "keep me", buf.String())
}

func TestPrefixReplacedAndIndentAdjusted(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("    fn")
	require.NoError(t, buf.SetCursor(ctx, position.Place{Line: 0, Character: 6}))

	s, err := snippet.Create(ctx, buf, "func ${1:name}() {\n\t$0\n}", snippet.Options{
		PrefixLen: 2,
		Indent:    &indent.Options{ExpandTab: true, ShiftWidth: 4},
	})
	require.NoError(t, err)

	assert.Equal(t, "    func name() {\n        \n    }", buf.String())
	assert.Equal(t, position.NewRange(0, 9, 0, 13), s.CurrentNode().Range())
}

func TestVariables(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("", buffer.WithPath("/src/main.go"))
	reg := variable.NewDefaultRegistry()
	reg.Register("EMPTY", variable.Static(""))

	s, err := snippet.Create(ctx, buf, "// $TM_FILENAME ${TM_FILENAME/(.*)\\.go/${1:/upcase}/} ${EMPTY:${1:dflt}} ${UNKNOWN:x}", snippet.Options{
		Resolver: reg.With(buf),
	})
	require.NoError(t, err)

	assert.Equal(t, "// main.go MAIN dflt x", buf.String())
	assert.Equal(t, 1, s.Focus(), "fill points in an unresolved default are live")
}

func TestRender(t *testing.T) {
	ctx := testContext(t)

	got, err := snippet.Render(ctx, "${1:foo} $1 ${2|a,b|} $0", nil)
	require.NoError(t, err)
	assert.Equal(t, "foo foo a ", got)

	_, err = snippet.Render(ctx, "${", nil)
	assert.Error(t, err)
}

func TestNestedExpansionAbsorbedOnJump(t *testing.T) {
	ctx := testContext(t)
	buf := buffer.NewMemory("")
	outer := create(t, ctx, buf, "a${1:x}b$2")

	typeAndUpdate(t, ctx, buf, outer, "fo")
	assert.Equal(t, "afob", buf.String())

	inner, err := snippet.Create(ctx, buf, "[$1]", snippet.Options{Outer: outer, PrefixLen: 2})
	require.NoError(t, err)
	assert.Equal(t, "a[]b", buf.String())
	assert.True(t, inner.Interactive())

	typeAndUpdate(t, ctx, buf, inner, "z")
	assert.Equal(t, "a[z]b", buf.String())

	assert.True(t, inner.Jumpable(snippet.Next), "outer still has a tabstop")
	ok, err := inner.Jump(ctx, snippet.Next)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, inner.Commit(ctx))
	require.NoError(t, outer.Absorb(ctx, inner))
	assert.Equal(t, position.NewRange(0, 1, 0, 4), outer.CurrentNode().Range())

	jump(t, ctx, outer, snippet.Next)
	assert.Equal(t, 2, outer.Focus())
	assert.Equal(t, position.NewRange(0, 5, 0, 5), outer.CurrentNode().Range())
}

func TestCurrentNodePanicsWithoutNodes(t *testing.T) {
	ctx := testContext(t)
	s := create(t, ctx, buffer.NewMemory(""), "text")

	assert.False(t, s.Interactive())
	assert.Panics(t, func() { s.CurrentNode() })
}

func TestRangeBeforeLayoutPanics(t *testing.T) {
	root, err := grammar.Parse("$1")
	require.NoError(t, err)
	assert.Panics(t, func() { root.Range() })
	assert.Equal(t, node.KindTabstop, root.Children[0].Kind())
}
