// Package rpc serves snippet sessions over JSON-RPC with LSP framing, for
// clients that keep their own text and mirror it into in-memory documents.
package rpc

import (
	"context"
	"encoding/json"
	"io"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/buffer"
	"github.com/walteh/gosnippet/pkg/config"
	"github.com/walteh/gosnippet/pkg/grammar"
	"github.com/walteh/gosnippet/pkg/position"
	"github.com/walteh/gosnippet/pkg/session"
	"github.com/walteh/gosnippet/pkg/snippet"
	"github.com/walteh/gosnippet/pkg/variable"
)

const (
	codeInvalidParams jrpc2.Code = -32602
	codeSnippetSyntax jrpc2.Code = -32001
)

type Server struct {
	id       string
	cfg      *config.Config
	docs     *DocumentManager
	registry *variable.Registry
	varOpts  []variable.Option
}

// NewServer serves documents configured by cfg. opts configure the
// built-in variables.
func NewServer(cfg *config.Config, opts ...variable.Option) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Server{
		id:       xid.New().String(),
		cfg:      cfg,
		docs:     NewDocumentManager(),
		registry: cfg.Registry(opts...),
		varOpts:  opts,
	}
}

func (s *Server) ID() string { return s.id }

func (s *Server) Documents() *DocumentManager { return s.docs }

func (s *Server) Methods() handler.Map {
	return handler.Map{
		"document/open":      createHandler(s.Open),
		"document/close":     createHandler(s.Close),
		"document/state":     createHandler(s.State),
		"document/type":      createHandler(s.Type),
		"document/setCursor": createHandler(s.SetCursor),
		"snippet/expand":     createHandler(s.Expand),
		"snippet/jump":       createHandler(s.Jump),
		"snippet/choice":     createHandler(s.Choice),
		"snippet/commit":     createHandler(s.Commit),
		"snippet/drop":       createHandler(s.Drop),
		"snippet/render":     createHandler(s.Render),
	}
}

// NewInstance builds a jrpc2 server whose handlers log through the logger
// in ctx. Requests are handled one at a time.
func (s *Server) NewInstance(ctx context.Context, opts *jrpc2.ServerOptions) *jrpc2.Server {
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}
	if opts.RPCLog == nil {
		opts.RPCLog = RPCLogger{}
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 1
	}
	base := zerolog.Ctx(ctx).With().Str("server_id", s.id).Logger().WithContext(ctx)
	opts.NewContext = func() context.Context { return base }
	return jrpc2.NewServer(s.Methods(), opts)
}

// Serve runs until the client hangs up.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.WriteCloser) error {
	zerolog.Ctx(ctx).Info().Str("server_id", s.id).Msg("serving snippets")
	if err := s.NewInstance(ctx, nil).Start(channel.LSP(r, w)).Wait(); err != nil {
		return errors.Errorf("serving: %w", err)
	}
	return nil
}

func createHandler[T any, O any](method func(ctx context.Context, params *T) (O, error)) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (any, error) {
		ctx = withRequest(ctx, r)
		var params T
		if err := r.UnmarshalParams(&params); err != nil {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
		}
		return method(ctx, &params)
	})
}

func invalidParams(format string, args ...any) error {
	return &jrpc2.Error{Code: codeInvalidParams, Message: errors.Errorf(format, args...).Error()}
}

func (s *Server) document(id string) (*Document, error) {
	doc, ok := s.docs.Get(id)
	if !ok {
		return nil, invalidParams("unknown document %q", id)
	}
	return doc, nil
}

func direction(d int) (snippet.Dir, error) {
	switch d {
	case 1:
		return snippet.Next, nil
	case -1:
		return snippet.Prev, nil
	}
	return 0, invalidParams("dir must be 1 or -1, got %d", d)
}

func (s *Server) Open(ctx context.Context, p *OpenParams) (*OpenResult, error) {
	opts := []buffer.MemoryOption{buffer.WithPath(p.Path)}
	for name, value := range p.Registers {
		opts = append(opts, buffer.WithRegister(name, value))
	}
	opts = append(opts, s.cfg.CommentsFor(p.Path).MemoryOptions()...)
	buf := buffer.NewMemory(p.Text, opts...)

	if p.Cursor != nil {
		if err := buf.SetCursor(ctx, *p.Cursor); err != nil {
			return nil, invalidParams("cursor: %s", err)
		}
	} else {
		end := position.CalcRange(position.Place{}, p.Text).End
		if err := buf.SetCursor(ctx, end); err != nil {
			return nil, errors.Errorf("moving cursor to %s: %w", end, err)
		}
	}

	ind, err := s.cfg.IndentFor(p.Path)
	if err != nil {
		return nil, err
	}

	doc := &Document{ID: newDocumentID(), Path: p.Path, Buffer: buf}
	doc.Session = session.New(buf,
		session.WithResolver(s.registry.With(buf)),
		session.WithIndent(ind),
		session.WithNotifier(doc.notify),
	)
	s.docs.Store(doc)

	zerolog.Ctx(ctx).Debug().Str("document", doc.ID).Str("path", p.Path).Msg("document opened")
	return &OpenResult{ID: doc.ID}, nil
}

func (s *Server) Close(ctx context.Context, p *DocumentParams) (bool, error) {
	doc, err := s.document(p.ID)
	if err != nil {
		return false, err
	}
	doc.Session.Drop(ctx)
	return s.docs.Delete(p.ID), nil
}

func (s *Server) State(ctx context.Context, p *DocumentParams) (*State, error) {
	doc, err := s.document(p.ID)
	if err != nil {
		return nil, err
	}
	return s.state(ctx, doc)
}

func (s *Server) Type(ctx context.Context, p *TypeParams) (*State, error) {
	doc, err := s.document(p.ID)
	if err != nil {
		return nil, err
	}
	if p.Backspace > 0 {
		doc.Buffer.Backspace(p.Backspace)
	}
	if p.Text != "" {
		doc.Buffer.Type(p.Text)
	}
	doc.Session.OnTextChanged(ctx)
	return s.state(ctx, doc)
}

func (s *Server) SetCursor(ctx context.Context, p *SetCursorParams) (*State, error) {
	doc, err := s.document(p.ID)
	if err != nil {
		return nil, err
	}
	if err := doc.Buffer.SetCursor(ctx, p.Cursor); err != nil {
		return nil, invalidParams("cursor: %s", err)
	}
	return s.state(ctx, doc)
}

func (s *Server) Expand(ctx context.Context, p *ExpandParams) (*ExpandResult, error) {
	doc, err := s.document(p.ID)
	if err != nil {
		return nil, err
	}
	started, err := doc.Session.Expand(ctx, p.Body, p.PrefixLen)
	if err != nil {
		return nil, snippetError(err)
	}
	st, err := s.state(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &ExpandResult{Started: started, State: *st}, nil
}

func (s *Server) Jump(ctx context.Context, p *DirParams) (*JumpResult, error) {
	doc, err := s.document(p.ID)
	if err != nil {
		return nil, err
	}
	dir, err := direction(p.Dir)
	if err != nil {
		return nil, err
	}
	moved, err := doc.Session.Jump(ctx, dir)
	if err != nil {
		return nil, err
	}
	st, err := s.state(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &JumpResult{Moved: moved, State: *st}, nil
}

func (s *Server) Choice(ctx context.Context, p *DirParams) (*State, error) {
	doc, err := s.document(p.ID)
	if err != nil {
		return nil, err
	}
	dir, err := direction(p.Dir)
	if err != nil {
		return nil, err
	}
	if err := doc.Session.Choice(ctx, dir); err != nil {
		return nil, err
	}
	return s.state(ctx, doc)
}

func (s *Server) Commit(ctx context.Context, p *DocumentParams) (*State, error) {
	doc, err := s.document(p.ID)
	if err != nil {
		return nil, err
	}
	if err := doc.Session.Commit(ctx); err != nil {
		return nil, err
	}
	return s.state(ctx, doc)
}

func (s *Server) Drop(ctx context.Context, p *DocumentParams) (*State, error) {
	doc, err := s.document(p.ID)
	if err != nil {
		return nil, err
	}
	doc.Session.Drop(ctx)
	return s.state(ctx, doc)
}

// Render expands a body to text without a document. Variables shadow the
// built-in ones.
func (s *Server) Render(ctx context.Context, p *RenderParams) (*RenderResult, error) {
	reg := s.cfg.Registry(s.varOpts...)
	for name, value := range p.Variables {
		reg.Register(name, variable.Static(value))
	}
	buf := buffer.NewMemory("", append([]buffer.MemoryOption{buffer.WithPath(p.Path)}, s.cfg.CommentsFor(p.Path).MemoryOptions()...)...)
	text, err := snippet.Render(ctx, p.Body, reg.With(buf))
	if err != nil {
		return nil, snippetError(err)
	}
	return &RenderResult{Text: text}, nil
}

func snippetError(err error) error {
	var perr *grammar.ParseError
	if errors.As(err, &perr) {
		data, merr := json.Marshal(perr.Range)
		if merr != nil {
			return errors.Errorf("encoding parse error range: %w", merr)
		}
		return &jrpc2.Error{Code: codeSnippetSyntax, Message: perr.Error(), Data: data}
	}
	return err
}

func (s *Server) state(ctx context.Context, doc *Document) (*State, error) {
	cur, err := doc.Buffer.Cursor(ctx)
	if err != nil {
		return nil, errors.Errorf("reading cursor: %w", err)
	}
	st := &State{
		Text:   doc.Buffer.String(),
		Cursor: cur,
	}
	if sel, ok := doc.Buffer.Selection(); ok {
		st.Selection = &sel
	}
	if sn := doc.Session.Current(); sn != nil {
		st.Active = true
		if len(sn.Nodes()) > 0 {
			ts := sn.Focus()
			st.Tabstop = &ts
		}
		st.JumpableNext = doc.Session.Jumpable(snippet.Next)
		st.JumpablePrev = doc.Session.Jumpable(snippet.Prev)
		st.Choosable = doc.Session.Choosable()
	}
	if err := doc.takeError(); err != nil {
		st.Error = err.Error()
	}
	return st, nil
}
