// Package variable resolves the $NAME variables a snippet body can reference.
package variable

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/position"
)

var ErrUnknownVariable = errors.Base("unknown variable")

// Env is the editor state variables are computed from.
type Env interface {
	CurrentLine(ctx context.Context) (string, error)
	Cursor(ctx context.Context) (position.Place, error)
	FilePath(ctx context.Context) (string, error)
	Register(ctx context.Context, name string) (string, error)
	// CommentString is a printf-style line comment template, e.g. "// %s".
	CommentString(ctx context.Context) (string, error)
	// Comments lists comment leaders in vim's 'comments' format.
	Comments(ctx context.Context) (string, error)
}

type Func func(ctx context.Context, env Env) (string, error)

// Static always resolves to value.
func Static(value string) Func {
	return func(context.Context, Env) (string, error) { return value, nil }
}

type Registry struct {
	mu        sync.RWMutex
	funcs     map[string]Func
	now       func() time.Time
	workspace string

	randMu sync.Mutex
	rand   *rand.Rand
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithRand(src *rand.Rand) Option {
	return func(r *Registry) { r.rand = src }
}

// WithWorkspace sets the folder WORKSPACE_* and RELATIVE_FILEPATH refer to.
func WithWorkspace(dir string) Option {
	return func(r *Registry) { r.workspace = dir }
}

// NewRegistry returns a registry without any variables.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		funcs: map[string]Func{},
		now:   time.Now,
		rand:  rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewDefaultRegistry returns a registry holding the built-in variables.
func NewDefaultRegistry(opts ...Option) *Registry {
	r := NewRegistry(opts...)
	r.registerBuiltins()
	return r
}

// Register adds or replaces the variable name.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call computes the variable name against env.
func (r *Registry) Call(ctx context.Context, env Env, name string) (string, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return "", errors.WithDetails(ErrUnknownVariable, "name", name)
	}
	value, err := fn(ctx, env)
	if err != nil {
		return "", errors.Errorf("computing %s: %w", name, err)
	}
	return value, nil
}

// intN draws from the shared source, which is not safe for concurrent use.
func (r *Registry) intN(n int) int {
	r.randMu.Lock()
	defer r.randMu.Unlock()
	return r.rand.IntN(n)
}

// With binds the registry to env so it can resolve variables of one buffer.
func (r *Registry) With(env Env) *Resolver {
	return &Resolver{registry: r, env: env}
}

// Resolver resolves variables for a single buffer.
type Resolver struct {
	registry *Registry
	env      Env
}

func (b *Resolver) Resolve(ctx context.Context, name string) (string, bool, error) {
	value, err := b.registry.Call(ctx, b.env, name)
	if errors.Is(err, ErrUnknownVariable) {
		zerolog.Ctx(ctx).Trace().Str("variable", name).Msg("unknown variable")
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	zerolog.Ctx(ctx).Trace().Str("variable", name).Str("value", value).Msg("resolved variable")
	return value, true, nil
}
