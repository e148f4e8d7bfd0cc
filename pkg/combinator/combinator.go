// Package combinator provides the small set of generic parser combinators the
// snippet grammar is built from.
//
// A parser never advances on failure: a failed Result always reports the
// position the parser was called with, so Or can retry alternatives and Seq
// fails atomically. A Result carrying Err is fatal and stops every combinator
// above it.
package combinator

import (
	"regexp"
	"strings"
	"sync"

	"gitlab.com/tozd/go/errors"
)

type Result[T any] struct {
	Value T
	Pos   int
	OK    bool
	Err   error
}

type Parser[T any] func(input string, pos int) Result[T]

// Maybe is the value produced by Opt.
type Maybe[T any] struct {
	Value   T
	Present bool
}

// Escaped holds the two views produced by TakeUntil.
type Escaped struct {
	// Raw keeps every backslash.
	Raw string
	// Esc drops the backslashes that escaped a stop or escapable character.
	Esc string
}

func Match[T any](value T, pos int) Result[T] {
	return Result[T]{Value: value, Pos: pos, OK: true}
}

func Fail[T any](pos int) Result[T] {
	return Result[T]{Pos: pos}
}

func Fatal[T any](pos int, err error) Result[T] {
	return Result[T]{Pos: pos, Err: err}
}

// Parse runs p against input from the beginning.
func (p Parser[T]) Parse(input string) Result[T] {
	return p(input, 0)
}

func Token(literal string) Parser[string] {
	return func(input string, pos int) Result[string] {
		if strings.HasPrefix(input[pos:], literal) {
			return Match(literal, pos+len(literal))
		}
		return Fail[string](pos)
	}
}

// Pattern matches expr anchored at the current position.
func Pattern(expr string) Parser[string] {
	re := regexp.MustCompile(`^(?:` + expr + `)`)
	return func(input string, pos int) Result[string] {
		loc := re.FindStringIndex(input[pos:])
		if loc == nil {
			return Fail[string](pos)
		}
		return Match(input[pos:pos+loc[1]], pos+loc[1])
	}
}

// TakeUntil consumes input up to the first unescaped byte in stops. A
// backslash always escapes the byte after it; in the Esc view the backslash
// is dropped only when the escaped byte is in stops or escapable. Matching
// nothing is a failure.
func TakeUntil(stops, escapable string) Parser[Escaped] {
	return func(input string, pos int) Result[Escaped] {
		var raw, esc strings.Builder
		i := pos
		for i < len(input) {
			c := input[i]
			if c == '\\' {
				raw.WriteByte('\\')
				i++
				if i >= len(input) {
					esc.WriteByte('\\')
					break
				}
				next := input[i]
				if strings.IndexByte(stops, next) < 0 && strings.IndexByte(escapable, next) < 0 {
					esc.WriteByte('\\')
				}
				raw.WriteByte(next)
				esc.WriteByte(next)
				i++
				continue
			}
			if strings.IndexByte(stops, c) >= 0 {
				break
			}
			raw.WriteByte(c)
			esc.WriteByte(c)
			i++
		}
		if i == pos {
			return Fail[Escaped](pos)
		}
		return Match(Escaped{Raw: raw.String(), Esc: esc.String()}, i)
	}
}

func Map[T, U any](p Parser[T], fn func(T) U) Parser[U] {
	return func(input string, pos int) Result[U] {
		r := p(input, pos)
		if r.Err != nil {
			return Fatal[U](r.Pos, r.Err)
		}
		if !r.OK {
			return Fail[U](pos)
		}
		return Match(fn(r.Value), r.Pos)
	}
}

// MapErr is Map for conversions that can fail. A conversion error is fatal.
func MapErr[T, U any](p Parser[T], fn func(T) (U, error)) Parser[U] {
	return func(input string, pos int) Result[U] {
		r := p(input, pos)
		if r.Err != nil {
			return Fatal[U](r.Pos, r.Err)
		}
		if !r.OK {
			return Fail[U](pos)
		}
		v, err := fn(r.Value)
		if err != nil {
			return Fatal[U](pos, err)
		}
		return Match(v, r.Pos)
	}
}

// Lazy defers building a parser until it is first used so grammars can refer
// to themselves.
func Lazy[T any](factory func() Parser[T]) Parser[T] {
	var (
		once sync.Once
		p    Parser[T]
	)
	return func(input string, pos int) Result[T] {
		once.Do(func() { p = factory() })
		return p(input, pos)
	}
}

// Or returns the first alternative that matches.
func Or[T any](parsers ...Parser[T]) Parser[T] {
	return func(input string, pos int) Result[T] {
		for _, p := range parsers {
			r := p(input, pos)
			if r.Err != nil || r.OK {
				return r
			}
		}
		return Fail[T](pos)
	}
}

// Many matches p one or more times.
func Many[T any](p Parser[T]) Parser[[]T] {
	return func(input string, pos int) Result[[]T] {
		var values []T
		cur := pos
		for cur < len(input) {
			r := p(input, cur)
			if r.Err != nil {
				return Fatal[[]T](r.Pos, r.Err)
			}
			if !r.OK || r.Pos == cur {
				break
			}
			values = append(values, r.Value)
			cur = r.Pos
		}
		if len(values) == 0 {
			return Fail[[]T](pos)
		}
		return Match(values, cur)
	}
}

// Opt always succeeds, without consuming when p does not match.
func Opt[T any](p Parser[T]) Parser[Maybe[T]] {
	return func(input string, pos int) Result[Maybe[T]] {
		r := p(input, pos)
		if r.Err != nil {
			return Fatal[Maybe[T]](r.Pos, r.Err)
		}
		if !r.OK {
			return Match(Maybe[T]{}, pos)
		}
		return Match(Maybe[T]{Value: r.Value, Present: true}, r.Pos)
	}
}

// Values is the product of Seq, one entry per step.
type Values []any

// Get returns the i-th value of a Seq result as T.
func Get[T any](v Values, i int) T {
	got, ok := v[i].(T)
	if !ok {
		panic(errors.Errorf("combinator: value %d is %T, not the requested type", i, v[i]))
	}
	return got
}

// Step is any Parser, whatever its value type.
type Step interface {
	step(input string, pos int) Result[any]
}

func (p Parser[T]) step(input string, pos int) Result[any] {
	r := p(input, pos)
	return Result[any]{Value: r.Value, Pos: r.Pos, OK: r.OK, Err: r.Err}
}

// Seq matches every step in order and fails as a whole if any step fails.
func Seq(steps ...Step) Parser[Values] {
	return func(input string, pos int) Result[Values] {
		values := make(Values, 0, len(steps))
		cur := pos
		for _, s := range steps {
			r := s.step(input, cur)
			if r.Err != nil {
				return Fatal[Values](r.Pos, r.Err)
			}
			if !r.OK {
				return Fail[Values](pos)
			}
			values = append(values, r.Value)
			cur = r.Pos
		}
		return Match(values, cur)
	}
}

// Preceded matches skip then p and keeps p's value.
func Preceded[S, T any](skip Parser[S], p Parser[T]) Parser[T] {
	return Map(Seq(skip, p), func(v Values) T { return Get[T](v, 1) })
}

// Terminated matches p then skip and keeps p's value.
func Terminated[T, S any](p Parser[T], skip Parser[S]) Parser[T] {
	return Map(Seq(p, skip), func(v Values) T { return Get[T](v, 0) })
}
