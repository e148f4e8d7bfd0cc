package rpc

import (
	"context"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
)

// RPCLogger traces every request and response at debug level.
type RPCLogger struct{}

func (RPCLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	zerolog.Ctx(ctx).Debug().
		Str("rpc_method", req.Method()).
		Str("rpc_id", req.ID()).
		Str("rpc_params", req.ParamString()).
		Msg("client request")
}

func (RPCLogger) LogResponse(ctx context.Context, res *jrpc2.Response) {
	ev := zerolog.Ctx(ctx).Debug().Str("rpc_id", res.ID())
	if err := res.Error(); err != nil {
		ev = ev.Err(err)
	} else {
		ev = ev.Str("rpc_result", res.ResultString())
	}
	ev.Msg("server response")
}

func withRequest(ctx context.Context, req *jrpc2.Request) context.Context {
	return zerolog.Ctx(ctx).With().
		Str("rpc_method", req.Method()).
		Str("rpc_id", req.ID()).
		Logger().
		WithContext(ctx)
}
