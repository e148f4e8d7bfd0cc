package nvim

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/neovim/go-client/nvim"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/gosnippet/pkg/config"
	"github.com/walteh/gosnippet/pkg/position"
	"github.com/walteh/gosnippet/pkg/session"
	"github.com/walteh/gosnippet/pkg/snippet"
)

func TestSliceLines(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		from  int
		to    int
		want  string
	}{
		{name: "single line", lines: []string{"hello"}, from: 1, to: 3, want: "el"},
		{name: "surrogate pair", lines: []string{"a😀b"}, from: 1, to: 3, want: "😀"},
		{name: "multi line", lines: []string{"ab", "cd", "ef"}, from: 1, to: 1, want: "b\ncd\ne"},
		{name: "past the end", lines: []string{"ab", "cd"}, from: 0, to: 1 << 30, want: "ab\ncd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sliceLines(tt.lines, tt.from, tt.to))
		})
	}
}

func TestDirection(t *testing.T) {
	dir, err := direction(-1)
	require.NoError(t, err)
	assert.Equal(t, snippet.Prev, dir)

	_, err = direction(2)
	assert.Error(t, err)
}

func startNeovim(t *testing.T) (context.Context, *nvim.Nvim) {
	t.Helper()
	cmd := os.Getenv("GOSNIPPET_NEOVIM_BIN")
	if cmd == "" {
		var err error
		cmd, err = exec.LookPath("nvim")
		if err != nil {
			t.Skipf("nvim not installed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	ctx = zerolog.New(zerolog.NewTestWriter(t)).WithContext(ctx)

	v, err := nvim.NewChildProcess(
		nvim.ChildProcessCommand(cmd),
		nvim.ChildProcessArgs("--clean", "-n", "--embed", "--headless", "--noplugin"),
		nvim.ChildProcessContext(ctx),
		nvim.ChildProcessLogf(t.Logf),
	)
	require.NoError(t, err, "starting neovim")
	t.Cleanup(func() { _ = v.Close() })

	// lets the cursor rest after the last character, as it does in insert mode
	require.NoError(t, v.Command("set virtualedit=onemore"))
	return ctx, v
}

func currentBuffer(t *testing.T, v *nvim.Nvim, lines ...string) *Buffer {
	t.Helper()
	id, err := v.CurrentBuffer()
	require.NoError(t, err)
	require.NoError(t, v.SetBufferLines(id, 0, -1, true, toByteLines(lines)))
	buf, err := NewBuffer(v, id)
	require.NoError(t, err)
	return buf
}

func bufferText(t *testing.T, ctx context.Context, buf *Buffer) string {
	t.Helper()
	n, err := buf.lineCount()
	require.NoError(t, err)
	text, err := buf.Text(ctx, position.NewRange(0, 0, n-1, 1<<30))
	require.NoError(t, err)
	return text
}

func TestBufferConvertsColumns(t *testing.T) {
	ctx, v := startNeovim(t)
	buf := currentBuffer(t, v, "é😀x", "second")

	require.NoError(t, buf.SetCursor(ctx, position.Place{Line: 0, Character: 3}))
	pos, err := v.WindowCursor(0)
	require.NoError(t, err)
	assert.Equal(t, [2]int{1, 6}, pos, "é is two bytes and 😀 is four")

	cur, err := buf.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, position.Place{Line: 0, Character: 3}, cur)

	text, err := buf.Text(ctx, position.NewRange(0, 1, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, "😀x\nsec", text)

	require.NoError(t, buf.ReplaceText(ctx, position.NewRange(0, 1, 0, 3), []string{"ab", "c"}))
	assert.Equal(t, "éab\ncx\nsecond", bufferText(t, ctx, buf))
}

func TestBufferTracksWithGravity(t *testing.T) {
	ctx, v := startNeovim(t)
	buf := currentBuffer(t, v, "a😀b")

	id, err := buf.Track(ctx, position.NewRange(0, 1, 0, 3), 0)
	require.NoError(t, err)

	require.NoError(t, buf.ReplaceText(ctx, position.NewRange(0, 3, 0, 3), []string{"zz"}))
	require.NoError(t, buf.ReplaceText(ctx, position.NewRange(0, 1, 0, 1), []string{"y"}))

	regions, err := buf.Tracked(ctx, id)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, position.NewRange(0, 1, 0, 6), regions[0].Range, "start stays left of inserts, end moves right")

	all, err := buf.Tracked(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, buf.ClearTracked(ctx))
	regions, err = buf.Tracked(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestBufferEnv(t *testing.T) {
	ctx, v := startNeovim(t)
	buf := currentBuffer(t, v, "line one", "line two")
	require.NoError(t, v.Command("setlocal commentstring=--%s"))
	var set int
	require.NoError(t, v.Call("setreg", &set, "a", "from a"))
	require.NoError(t, buf.SetCursor(ctx, position.Place{Line: 1, Character: 2}))

	line, err := buf.CurrentLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "line two", line)

	reg, err := buf.Register(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "from a", reg)

	cs, err := buf.CommentString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "--%s", cs)
}

func TestSessionInNeovim(t *testing.T) {
	ctx, v := startNeovim(t)
	buf := currentBuffer(t, v, "x = ")
	require.NoError(t, buf.SetCursor(ctx, position.Place{Line: 0, Character: 4}))

	s := session.New(buf)
	started, err := s.Expand(ctx, "$1 $1 ${2:two}", 0)
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, "x =   two", bufferText(t, ctx, buf))

	require.NoError(t, buf.ReplaceText(ctx, position.NewRange(0, 4, 0, 4), []string{"é"}))
	s.OnTextChanged(ctx)
	assert.Equal(t, "x = é é two", bufferText(t, ctx, buf))

	s.Drop(ctx)
	assert.False(t, s.Active())
	regions, err := buf.Tracked(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestHostHandlers(t *testing.T) {
	ctx, v := startNeovim(t)
	buf := currentBuffer(t, v, "")

	h := NewHost(ctx, v, config.Default())
	require.NoError(t, h.Register())
	require.NoError(t, h.Bootstrap())

	var started bool
	require.NoError(t, v.ExecLua(`return gosnippet.anonymous(...)`, &started, "<$1|${2|a,b|}>"))
	assert.True(t, started)
	assert.Equal(t, "<|a>", bufferText(t, ctx, buf))

	var jumped bool
	require.NoError(t, v.ExecLua(`return gosnippet.jump(1)`, &jumped))
	assert.True(t, jumped)

	var choosable bool
	require.NoError(t, v.ExecLua(`return gosnippet.choosable()`, &choosable))
	assert.True(t, choosable)

	var ok bool
	require.NoError(t, v.ExecLua(`gosnippet.choice(1) return true`, &ok))
	assert.Equal(t, "<|b>", bufferText(t, ctx, buf))

	var jumpable bool
	require.NoError(t, v.ExecLua(`return gosnippet.jumpable(1)`, &jumpable))
	assert.False(t, jumpable)

	require.NoError(t, v.ExecLua(`gosnippet.commit() return true`, &ok))
	a := h.lookup(int(buf.ID()))
	require.NotNil(t, a)
	assert.False(t, a.session.Active())

	regions, err := buf.Tracked(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, regions, "commit clears the tracked region")
}
