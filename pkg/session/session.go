// Package session is the state machine driving snippet expansion in one
// buffer: it owns the chain of nested snippets, schedules updates while the
// user types and tears everything down when the tree can no longer be
// trusted.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/buffer"
	"github.com/walteh/gosnippet/pkg/indent"
	"github.com/walteh/gosnippet/pkg/node"
	"github.com/walteh/gosnippet/pkg/snippet"
)

// Notifier reports errors the session swallowed, such as a failed update.
type Notifier func(ctx context.Context, err error)

type Option func(*Session)

// WithDebounce delays updates until no text change arrived for d. Zero
// updates on every change.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notify = n }
}

func WithResolver(r node.Resolver) Option {
	return func(s *Session) { s.resolver = r }
}

// WithIndent fits expanded bodies to the cursor line with o.
func WithIndent(o indent.Options) Option {
	return func(s *Session) { s.indent = &o }
}

type Session struct {
	buf      buffer.Buffer
	resolver node.Resolver
	indent   *indent.Options
	debounce time.Duration
	notify   Notifier

	// guard is read without mu so that buffer callbacks fired while an
	// operation holds the lock return instead of blocking.
	guard atomic.Int32

	mu      sync.Mutex
	current *snippet.Snippet
	timer   *time.Timer
	gen     uint64
	pending bool
}

func New(buf buffer.Buffer, opts ...Option) *Session {
	s := &Session{
		buf:    buf,
		notify: func(context.Context, error) {},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetResolver replaces the variable resolver used by later expansions.
func (s *Session) SetResolver(r node.Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver = r
}

// SetIndent replaces the indent options used by later expansions. nil
// inserts bodies unchanged.
func (s *Session) SetIndent(o *indent.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indent = o
}

// Active reports whether a snippet is being edited.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Current is the innermost snippet, or nil when idle.
func (s *Session) Current() *snippet.Snippet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Expand inserts body over the prefixLen units before the cursor. When the
// cursor is inside the current node the new snippet nests in it. It reports
// whether the new snippet has fill points to visit; a snippet without any
// is folded into its outer snippet straight away.
func (s *Session) Expand(ctx context.Context, body string, prefixLen int) (bool, error) {
	s.guard.Add(1)
	defer s.guard.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.updateLocked(ctx)

	outer := s.current
	if outer != nil {
		inside, err := s.insideLocked(ctx, outer)
		if err != nil {
			return false, err
		}
		if !inside {
			s.dropLocked(ctx, "expanded outside the active node")
			outer = nil
		}
	}

	sn, err := snippet.Create(ctx, s.buf, body, snippet.Options{
		Outer:     outer,
		PrefixLen: prefixLen,
		Resolver:  s.resolver,
		Indent:    s.indent,
	})
	if err != nil {
		return false, err
	}

	if !sn.Interactive() {
		if outer != nil {
			if err := outer.Absorb(ctx, sn); err != nil {
				s.dropLocked(ctx, "absorbing expansion failed")
				return false, errors.Errorf("absorbing expansion: %w", err)
			}
		}
		return false, nil
	}

	zerolog.Ctx(ctx).Debug().Int("tabstops", len(sn.Nodes())).Bool("nested", outer != nil).Msg("session expanded")
	s.current = sn
	return true, nil
}

func (s *Session) insideLocked(ctx context.Context, sn *snippet.Snippet) (bool, error) {
	cursor, err := s.buf.Cursor(ctx)
	if err != nil {
		return false, errors.Errorf("reading cursor: %w", err)
	}
	return sn.CurrentNode().Range().Contains(cursor), nil
}

// Jumpable reports whether Jump in dir would move anywhere.
func (s *Session) Jumpable(dir snippet.Dir) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.Jumpable(dir)
}

// Jump moves to the next fill point in dir, leaving nested snippets for
// their outer ones as their ends are passed.
func (s *Session) Jump(ctx context.Context, dir snippet.Dir) (bool, error) {
	s.guard.Add(1)
	defer s.guard.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked(ctx)
	if s.current == nil || !s.current.Jumpable(dir) {
		return false, nil
	}

	for sn := s.current; sn != nil; {
		ok, err := sn.Jump(ctx, dir)
		if err != nil {
			s.dropLocked(ctx, "jump failed")
			return false, err
		}
		if ok {
			s.current = sn
			return true, nil
		}
		outer := sn.Outer()
		if outer == nil {
			break
		}
		if err := s.leaveLocked(ctx, sn, outer); err != nil {
			return false, err
		}
		// sn is committed, so outer owns the tracked region from here on
		// even when it has nowhere to go.
		s.current = outer
		sn = outer
	}
	return false, nil
}

// leaveLocked commits inner and folds its text into outer's current node.
func (s *Session) leaveLocked(ctx context.Context, inner, outer *snippet.Snippet) error {
	if err := inner.Commit(ctx); err != nil {
		s.dropLocked(ctx, "commit failed")
		return errors.Errorf("committing nested snippet: %w", err)
	}
	if err := outer.Absorb(ctx, inner); err != nil {
		s.dropLocked(ctx, "absorbing nested snippet failed")
		return errors.Errorf("absorbing nested snippet: %w", err)
	}
	return nil
}

func (s *Session) Choosable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.Choosable()
}

// Choice cycles the current choice node in dir.
func (s *Session) Choice(ctx context.Context, dir snippet.Dir) error {
	s.guard.Add(1)
	defer s.guard.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked(ctx)
	if s.current == nil {
		return nil
	}
	if err := s.current.Choice(ctx, dir); err != nil {
		s.dropLocked(ctx, "choice failed")
		return err
	}
	return nil
}

// OnTextChanged is called by the host after the user edited the buffer. It
// is ignored while guarded.
func (s *Session) OnTextChanged(ctx context.Context) {
	if s.guard.Load() > 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return
	}
	if s.debounce <= 0 {
		s.updateLocked(ctx)
		return
	}

	s.cancelLocked()
	s.gen++
	gen := s.gen
	s.pending = true
	bg := context.WithoutCancel(ctx)
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.pending || s.gen != gen {
			return
		}
		s.pending = false
		s.updateLocked(bg)
	})
}

// Update reads the current node back from the buffer right away. Failures
// drop the session and go to the notifier.
func (s *Session) Update(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.updateLocked(ctx)
}

// Commit applies every transform, folds nested snippets into their outer
// ones and ends the session.
func (s *Session) Commit(ctx context.Context) error {
	s.guard.Add(1)
	defer s.guard.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked(ctx)
	for sn := s.current; sn != nil; sn = sn.Outer() {
		if outer := sn.Outer(); outer != nil {
			if err := s.leaveLocked(ctx, sn, outer); err != nil {
				return err
			}
			continue
		}
		if err := sn.Commit(ctx); err != nil {
			s.dropLocked(ctx, "commit failed")
			return errors.Errorf("committing snippet: %w", err)
		}
	}
	s.dropLocked(ctx, "committed")
	return nil
}

// Drop ends the session without touching the buffer text. It is ignored
// while guarded.
func (s *Session) Drop(ctx context.Context) {
	if s.guard.Load() > 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked(ctx)
	s.dropLocked(ctx, "dropped")
}

// Guard makes OnTextChanged and Drop no-ops until the matching Unguard.
// Hosts wrap their own buffer edits in it.
func (s *Session) Guard() {
	s.guard.Add(1)
}

func (s *Session) Unguard() {
	if s.guard.Add(-1) < 0 {
		s.guard.Store(0)
	}
}

func (s *Session) Guarded() bool {
	return s.guard.Load() > 0
}

func (s *Session) flushLocked(ctx context.Context) {
	if !s.pending {
		return
	}
	s.cancelLocked()
	s.updateLocked(ctx)
}

func (s *Session) cancelLocked() {
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) updateLocked(ctx context.Context) {
	if s.current == nil {
		return
	}
	cur := s.current
	if err := recovered(func() error { return cur.Update(ctx, cur.Focus()) }); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("snippet update failed, dropping session")
		s.notify(ctx, err)
		s.dropLocked(ctx, "update failed")
	}
}

func (s *Session) dropLocked(ctx context.Context, reason string) {
	s.cancelLocked()
	if s.current == nil {
		return
	}
	s.current = nil
	zerolog.Ctx(ctx).Debug().Str("reason", reason).Msg("session dropped")
	if err := s.buf.ClearTracked(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("clearing tracked regions")
	}
}

func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("update panicked: %s", fmt.Sprint(r))
		}
	}()
	return fn()
}
