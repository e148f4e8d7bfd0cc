package rpc_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/config"
	"github.com/walteh/gosnippet/pkg/position"
	"github.com/walteh/gosnippet/pkg/rpc"
)

func start(t *testing.T, srv *rpc.Server) (context.Context, *jrpc2.Client) {
	t.Helper()
	ctx := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).WithContext(context.Background())

	serverReader, clientWriter := io.Pipe()
	clientReader, serverWriter := io.Pipe()

	instance := srv.NewInstance(ctx, nil)
	instance.Start(channel.LSP(serverReader, serverWriter))
	client := jrpc2.NewClient(channel.LSP(clientReader, clientWriter), nil)

	t.Cleanup(func() {
		_ = client.Close()
		instance.Stop()
	})
	return ctx, client
}

func call[T any](t *testing.T, ctx context.Context, c *jrpc2.Client, method string, params any) T {
	t.Helper()
	var out T
	require.NoError(t, c.CallResult(ctx, method, params, &out), method)
	return out
}

func rpcCode(t *testing.T, err error) jrpc2.Code {
	t.Helper()
	require.Error(t, err)
	var jerr *jrpc2.Error
	require.True(t, errors.As(err, &jerr), "want a jrpc2 error, got %T", err)
	return jerr.Code
}

func TestSessionOverRPC(t *testing.T) {
	srv := rpc.NewServer(config.Default())
	ctx, c := start(t, srv)

	open := call[rpc.OpenResult](t, ctx, c, "document/open", rpc.OpenParams{Path: "/src/x.go"})
	require.NotEmpty(t, open.ID)
	assert.Equal(t, 1, srv.Documents().Len())

	expanded := call[rpc.ExpandResult](t, ctx, c, "snippet/expand", rpc.ExpandParams{ID: open.ID, Body: "$1 $1 ${2|a,b|}"})
	assert.True(t, expanded.Started)
	assert.Equal(t, "  a", expanded.State.Text)
	require.NotNil(t, expanded.State.Tabstop)
	assert.Equal(t, 1, *expanded.State.Tabstop)
	assert.True(t, expanded.State.JumpableNext)
	assert.False(t, expanded.State.JumpablePrev)

	typed := call[rpc.State](t, ctx, c, "document/type", rpc.TypeParams{ID: open.ID, Text: "ab"})
	assert.Equal(t, "ab ab a", typed.Text)
	assert.Equal(t, position.Place{Line: 0, Character: 2}, typed.Cursor)

	jumped := call[rpc.JumpResult](t, ctx, c, "snippet/jump", rpc.DirParams{ID: open.ID, Dir: 1})
	assert.True(t, jumped.Moved)
	assert.True(t, jumped.State.Choosable)
	require.NotNil(t, jumped.State.Selection)
	assert.Equal(t, position.NewRange(0, 6, 0, 7), *jumped.State.Selection)

	chosen := call[rpc.State](t, ctx, c, "snippet/choice", rpc.DirParams{ID: open.ID, Dir: 1})
	assert.Equal(t, "ab ab b", chosen.Text)

	jumped = call[rpc.JumpResult](t, ctx, c, "snippet/jump", rpc.DirParams{ID: open.ID, Dir: 1})
	assert.False(t, jumped.Moved)
	assert.True(t, jumped.State.Active)

	committed := call[rpc.State](t, ctx, c, "snippet/commit", rpc.DocumentParams{ID: open.ID})
	assert.False(t, committed.Active)
	assert.Equal(t, "ab ab b", committed.Text)

	assert.True(t, call[bool](t, ctx, c, "document/close", rpc.DocumentParams{ID: open.ID}))
	_, err := c.Call(ctx, "document/state", rpc.DocumentParams{ID: open.ID})
	assert.Equal(t, jrpc2.Code(-32602), rpcCode(t, err))
}

func TestOpenWithCursorAndTransformOnCommit(t *testing.T) {
	ctx, c := start(t, rpc.NewServer(nil))

	open := call[rpc.OpenResult](t, ctx, c, "document/open", rpc.OpenParams{
		Text:   "x = \nend",
		Cursor: &position.Place{Line: 0, Character: 4},
	})

	call[rpc.ExpandResult](t, ctx, c, "snippet/expand", rpc.ExpandParams{ID: open.ID, Body: "$1 ${1:/upcase}"})
	call[rpc.State](t, ctx, c, "document/type", rpc.TypeParams{ID: open.ID, Text: "hi"})

	st := call[rpc.State](t, ctx, c, "snippet/commit", rpc.DocumentParams{ID: open.ID})
	assert.Equal(t, "x = hi HI\nend", st.Text)
}

func TestSetCursorAndDrop(t *testing.T) {
	ctx, c := start(t, rpc.NewServer(nil))

	open := call[rpc.OpenResult](t, ctx, c, "document/open", rpc.OpenParams{Text: "ab"})
	st := call[rpc.State](t, ctx, c, "document/state", rpc.DocumentParams{ID: open.ID})
	assert.Equal(t, position.Place{Line: 0, Character: 2}, st.Cursor, "cursor starts at the end")

	st = call[rpc.State](t, ctx, c, "document/setCursor", rpc.SetCursorParams{ID: open.ID, Cursor: position.Place{Line: 0, Character: 1}})
	assert.Equal(t, position.Place{Line: 0, Character: 1}, st.Cursor)

	_, err := c.Call(ctx, "document/setCursor", rpc.SetCursorParams{ID: open.ID, Cursor: position.Place{Line: 4, Character: 0}})
	assert.Equal(t, jrpc2.Code(-32602), rpcCode(t, err))

	call[rpc.ExpandResult](t, ctx, c, "snippet/expand", rpc.ExpandParams{ID: open.ID, Body: "<$1>"})
	st = call[rpc.State](t, ctx, c, "snippet/drop", rpc.DocumentParams{ID: open.ID})
	assert.False(t, st.Active)
	assert.Equal(t, "a<>b", st.Text)
}

func TestErrors(t *testing.T) {
	ctx, c := start(t, rpc.NewServer(nil))
	open := call[rpc.OpenResult](t, ctx, c, "document/open", rpc.OpenParams{})

	_, err := c.Call(ctx, "snippet/expand", rpc.ExpandParams{ID: open.ID, Body: "${1:"})
	assert.Equal(t, jrpc2.Code(-32001), rpcCode(t, err))
	var jerr *jrpc2.Error
	require.True(t, errors.As(err, &jerr))
	var at position.Range
	require.NoError(t, json.Unmarshal(jerr.Data, &at))
	assert.Equal(t, position.NewRange(0, 0, 0, 1), at, "the error data locates the failure")

	st := call[rpc.State](t, ctx, c, "document/state", rpc.DocumentParams{ID: open.ID})
	assert.Equal(t, "", st.Text, "a failed expansion inserts nothing")

	_, err = c.Call(ctx, "snippet/jump", rpc.DirParams{ID: open.ID, Dir: 0})
	assert.Equal(t, jrpc2.Code(-32602), rpcCode(t, err))

	_, err = c.Call(ctx, "snippet/jump", rpc.DirParams{ID: "missing", Dir: 1})
	assert.Equal(t, jrpc2.Code(-32602), rpcCode(t, err))
}

func TestRender(t *testing.T) {
	cfg := &config.Config{Variables: map[string]string{"TEAM": "core"}}
	ctx, c := start(t, rpc.NewServer(cfg))

	got := call[rpc.RenderResult](t, ctx, c, "snippet/render", rpc.RenderParams{
		Body:      "${1:x}-$TM_FILENAME-$TEAM-$WHO-${NOPE:dflt}",
		Path:      "/a/b.go",
		Variables: map[string]string{"WHO": "me"},
	})
	assert.Equal(t, "x-b.go-core-me-dflt", got.Text)

	_, err := c.Call(ctx, "snippet/render", rpc.RenderParams{Body: "${"})
	assert.Equal(t, jrpc2.Code(-32001), rpcCode(t, err))
}
