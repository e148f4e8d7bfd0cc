package nvim

import (
	"context"
	_ "embed"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/neovim/go-client/nvim"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/gosnippet/pkg/config"
	"github.com/walteh/gosnippet/pkg/indent"
	"github.com/walteh/gosnippet/pkg/session"
	"github.com/walteh/gosnippet/pkg/snippet"
	"github.com/walteh/gosnippet/pkg/variable"
)

//go:embed lua/bootstrap.lua
var bootstrapLua string

// Host runs one snippet session per Neovim buffer.
type Host struct {
	v        *nvim.Nvim
	cfg      *config.Config
	registry *variable.Registry

	ctx context.Context

	mu       sync.Mutex
	attached map[nvim.Buffer]*attached
}

type attached struct {
	buf     *Buffer
	session *session.Session
}

func NewHost(ctx context.Context, v *nvim.Nvim, cfg *config.Config, opts ...variable.Option) *Host {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Host{
		v:        v,
		cfg:      cfg,
		registry: cfg.Registry(opts...),
		ctx:      ctx,
		attached: map[nvim.Buffer]*attached{},
	}
}

// Register installs the gosnippet_* request handlers.
func (h *Host) Register() error {
	handlers := map[string]any{
		"gosnippet_expand":    h.expand,
		"gosnippet_anonymous": h.anonymous,
		"gosnippet_jump":      h.jump,
		"gosnippet_jumpable":  h.jumpable,
		"gosnippet_choice":    h.choice,
		"gosnippet_choosable": h.choosable,
		"gosnippet_update":    h.update,
		"gosnippet_commit":    h.commit,
		"gosnippet_drop":      h.drop,
	}
	var result *multierror.Error
	for name, fn := range handlers {
		if err := h.v.RegisterHandler(name, fn); err != nil {
			result = multierror.Append(result, errors.Errorf("registering %s: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

// Bootstrap defines the global gosnippet Lua module and the autocmds that
// keep sessions in sync. It needs the client to be serving.
func (h *Host) Bootstrap() error {
	var ok bool
	if err := h.v.ExecLua(bootstrapLua, &ok, h.v.ChannelID()); err != nil {
		return errors.Errorf("running bootstrap: %w", err)
	}
	return nil
}

// Serve hosts sessions for the Neovim instance on the other end of r and w,
// as started by jobstart with rpc enabled. It returns when Neovim hangs up
// or ctx is done.
func Serve(ctx context.Context, cfg *config.Config, r io.Reader, w io.WriteCloser, opts ...variable.Option) error {
	logger := zerolog.Ctx(ctx)
	v, err := nvim.New(r, w, w, func(format string, args ...any) {
		logger.Trace().Msgf(format, args...)
	})
	if err != nil {
		return errors.Errorf("connecting to neovim: %w", err)
	}

	h := NewHost(ctx, v, cfg, opts...)
	if err := h.Register(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		if err := v.Serve(); err != nil {
			return errors.Errorf("serving neovim: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := h.Bootstrap(); err != nil {
			return err
		}
		logger.Info().Int("channel", v.ChannelID()).Msg("serving neovim")
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// unblocks Serve
		_ = v.Close()
		return nil
	})

	return g.Wait()
}

// current returns the session of the current buffer, attaching one when
// create is set. It returns nil when there is none.
func (h *Host) current(create bool) (*attached, error) {
	id, err := h.v.CurrentBuffer()
	if err != nil {
		return nil, errors.Errorf("reading current buffer: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if a, ok := h.attached[id]; ok || !create {
		return a, nil
	}

	buf, err := NewBuffer(h.v, id)
	if err != nil {
		return nil, err
	}
	path, err := buf.FilePath(h.ctx)
	if err != nil {
		return nil, err
	}
	ind, err := h.indentFor(buf, path)
	if err != nil {
		return nil, err
	}

	a := &attached{buf: buf}
	a.session = session.New(buf,
		session.WithResolver(h.registry.With(buf)),
		session.WithIndent(ind),
		session.WithDebounce(h.cfg.DebounceDuration()),
		session.WithNotifier(h.notify),
	)
	h.attached[id] = a

	zerolog.Ctx(h.ctx).Debug().Int("buffer", int(id)).Str("path", path).Msg("attached")
	return a, nil
}

func (h *Host) lookup(bufnr int) *attached {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached[nvim.Buffer(bufnr)]
}

// indentFor starts from the buffer's own options unless the config sets
// indent, then applies editorconfig and overrides.
func (h *Host) indentFor(buf *Buffer, path string) (indent.Options, error) {
	if h.cfg.Indent != nil {
		return h.cfg.IndentFor(path)
	}
	opts, err := buf.IndentOptions()
	if err != nil {
		return indent.Options{}, err
	}
	cfg := *h.cfg
	cfg.Indent = &opts
	return cfg.IndentFor(path)
}

func (h *Host) notify(ctx context.Context, err error) {
	zerolog.Ctx(ctx).Error().Err(err).Msg("snippet session dropped")
	var ok bool
	if lerr := h.v.ExecLua(`local msg = ... vim.notify("gosnippet: " .. msg, vim.log.levels.WARN) return true`, &ok, err.Error()); lerr != nil {
		zerolog.Ctx(ctx).Error().Err(lerr).Msg("notifying neovim")
	}
}

func (h *Host) expand(body string, prefixLen int) (bool, error) {
	a, err := h.current(true)
	if err != nil {
		return false, err
	}
	return a.session.Expand(h.ctx, body, prefixLen)
}

// anonymous expands body at the cursor without consuming a prefix.
func (h *Host) anonymous(body string) (bool, error) {
	return h.expand(body, 0)
}

func direction(d int) (snippet.Dir, error) {
	switch d {
	case 1:
		return snippet.Next, nil
	case -1:
		return snippet.Prev, nil
	}
	return 0, errors.Errorf("dir must be 1 or -1, got %d", d)
}

func (h *Host) jump(d int) (bool, error) {
	dir, err := direction(d)
	if err != nil {
		return false, err
	}
	a, err := h.current(false)
	if err != nil || a == nil {
		return false, err
	}
	return a.session.Jump(h.ctx, dir)
}

func (h *Host) jumpable(d int) (bool, error) {
	dir, err := direction(d)
	if err != nil {
		return false, err
	}
	a, err := h.current(false)
	if err != nil || a == nil {
		return false, err
	}
	return a.session.Jumpable(dir), nil
}

func (h *Host) choice(d int) error {
	dir, err := direction(d)
	if err != nil {
		return err
	}
	a, err := h.current(false)
	if err != nil || a == nil {
		return err
	}
	return a.session.Choice(h.ctx, dir)
}

func (h *Host) choosable() (bool, error) {
	a, err := h.current(false)
	if err != nil || a == nil {
		return false, err
	}
	return a.session.Choosable(), nil
}

// update, commit and drop arrive as notifications from autocmds, so they
// name their buffer instead of reading the current one.

func (h *Host) update(bufnr int) error {
	a := h.lookup(bufnr)
	if a == nil {
		return nil
	}
	a.session.OnTextChanged(h.ctx)
	return nil
}

func (h *Host) commit(bufnr int) error {
	a := h.lookup(bufnr)
	if a == nil {
		return nil
	}
	return a.session.Commit(h.ctx)
}

func (h *Host) drop(bufnr int) error {
	a := h.lookup(bufnr)
	if a == nil {
		return nil
	}
	a.session.Drop(h.ctx)
	return nil
}
