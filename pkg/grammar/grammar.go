// Package grammar parses snippet bodies written in the VSCode snippet syntax.
package grammar

import (
	"strconv"

	"gitlab.com/tozd/go/errors"

	c "github.com/walteh/gosnippet/pkg/combinator"
	"github.com/walteh/gosnippet/pkg/node"
)

var body = build()

// Parse turns a snippet body into a tree. Input the grammar cannot consume
// is reported as a *ParseError.
func Parse(text string) (*node.Snippet, error) {
	r := body(text, 0)
	if r.Err != nil {
		return nil, newParseError(text, r.Pos, r.Err.Error(), r.Err)
	}
	if !r.OK {
		return nil, newParseError(text, r.Pos, "no alternative matched", nil)
	}
	if r.Pos != len(text) {
		return nil, newParseError(text, r.Pos, "unexpected "+strconv.Quote(excerpt(text[r.Pos:])), nil)
	}
	return r.Value, nil
}

func excerpt(rest string) string {
	const limit = 16
	if len(rest) <= limit {
		return rest
	}
	return rest[:limit] + "..."
}

func build() c.Parser[*node.Snippet] {
	var (
		dollar   = c.Token("$")
		lbrace   = c.Token("{")
		rbrace   = c.Token("}")
		colon    = c.Token(":")
		slash    = c.Token("/")
		comma    = c.Token(",")
		pipe     = c.Token("|")
		plus     = c.Token("+")
		minus    = c.Token("-")
		question = c.Token("?")

		name    = c.Pattern(`[_a-zA-Z][_a-zA-Z0-9]*`)
		integer = c.MapErr(c.Pattern(`[0-9]+`), func(s string) (int, error) {
			n, err := strconv.Atoi(s)
			if err != nil {
				return 0, errors.Errorf("tabstop index %s: %w", s, err)
			}
			return n, nil
		})
		flags = c.Pattern(`[gimsuy]+`)
	)

	text := func(stops, escapable string) c.Parser[node.Node] {
		return c.Map(c.TakeUntil(stops, escapable), func(e c.Escaped) node.Node {
			return node.NewText(e.Esc)
		})
	}

	modifiers := make([]c.Parser[node.Modifier], 0, len(node.Modifiers))
	for _, m := range node.Modifiers {
		modifiers = append(modifiers, c.Map(c.Token(string(m)), func(string) node.Modifier { return m }))
	}
	modifier := c.Or(modifiers...)

	// ${n:/upcase} with or without the closing slash
	caseOf := c.Seq(dollar, lbrace, integer, colon, slash, modifier, c.Opt(slash), rbrace)

	escText := func(v c.Values, i int) string {
		return c.Get[c.Maybe[c.Escaped]](v, i).Value.Esc
	}

	format := c.Or(
		c.Map(c.Seq(dollar, integer), func(v c.Values) *node.Format {
			return &node.Format{Capture: c.Get[int](v, 1)}
		}),
		c.Map(c.Seq(dollar, lbrace, integer, rbrace), func(v c.Values) *node.Format {
			return &node.Format{Capture: c.Get[int](v, 2)}
		}),
		c.Map(caseOf, func(v c.Values) *node.Format {
			return &node.Format{Capture: c.Get[int](v, 2), Modifier: c.Get[node.Modifier](v, 5)}
		}),
		c.Map(c.Seq(dollar, lbrace, integer, colon, plus, c.Opt(c.TakeUntil("}", `\`)), rbrace), func(v c.Values) *node.Format {
			return &node.Format{Capture: c.Get[int](v, 2), IfText: escText(v, 5)}
		}),
		c.Map(c.Seq(dollar, lbrace, integer, colon, question, c.Opt(c.TakeUntil(":", `\`)), colon, c.Opt(c.TakeUntil("}", `\`)), rbrace), func(v c.Values) *node.Format {
			return &node.Format{Capture: c.Get[int](v, 2), IfText: escText(v, 5), ElseText: escText(v, 7)}
		}),
		c.Map(c.Seq(dollar, lbrace, integer, colon, c.Opt(minus), c.Opt(c.TakeUntil("}", `\`)), rbrace), func(v c.Values) *node.Format {
			return &node.Format{Capture: c.Get[int](v, 2), ElseText: escText(v, 5)}
		}),
	)

	segment := c.Or(
		c.Map(format, func(f *node.Format) node.Segment { return f }),
		c.Map(c.TakeUntil("$/", `\`), func(e c.Escaped) node.Segment { return node.NewText(e.Esc) }),
	)

	transform := c.MapErr(
		c.Seq(slash, c.TakeUntil("/", `\`), slash, c.Opt(c.Many(segment)), slash, c.Opt(flags)),
		func(v c.Values) (*node.Transform, error) {
			return node.NewTransform(
				c.Get[c.Escaped](v, 1).Raw,
				c.Get[c.Maybe[[]node.Segment]](v, 3).Value,
				c.Get[c.Maybe[string]](v, 5).Value,
			)
		},
	)

	var fillable c.Parser[node.Node]
	inner := c.Lazy(func() c.Parser[node.Node] { return fillable })

	children := func(v c.Values, i int) []node.Node {
		return c.Get[c.Maybe[[]node.Node]](v, i).Value
	}
	nested := c.Opt(c.Many(c.Or(inner, text("$}", `\`))))

	caseTabstop := c.Map(caseOf, func(v c.Values) node.Node {
		return node.NewTabstop(c.Get[int](v, 2), node.NewCaseTransform(c.Get[node.Modifier](v, 5)))
	})

	tabstop := c.Or(
		c.Map(c.Seq(dollar, integer), func(v c.Values) node.Node {
			return node.NewTabstop(c.Get[int](v, 1), nil)
		}),
		c.Map(c.Seq(dollar, lbrace, integer, rbrace), func(v c.Values) node.Node {
			return node.NewTabstop(c.Get[int](v, 2), nil)
		}),
		c.Map(c.Seq(dollar, lbrace, integer, transform, rbrace), func(v c.Values) node.Node {
			return node.NewTabstop(c.Get[int](v, 2), c.Get[*node.Transform](v, 3))
		}),
	)

	placeholder := c.Map(c.Seq(dollar, lbrace, integer, colon, nested, rbrace), func(v c.Values) node.Node {
		return node.NewPlaceholder(c.Get[int](v, 2), children(v, 4))
	})

	item := c.Map(c.Seq(c.TakeUntil(",|", `\`), c.Opt(comma)), func(v c.Values) string {
		return c.Get[c.Escaped](v, 0).Esc
	})
	choice := c.Map(c.Seq(dollar, lbrace, integer, pipe, c.Many(item), pipe, rbrace), func(v c.Values) node.Node {
		return node.NewChoice(c.Get[int](v, 2), c.Get[[]string](v, 4))
	})

	variable := c.Or(
		c.Map(c.Seq(dollar, name), func(v c.Values) node.Node {
			return node.NewVariable(c.Get[string](v, 1), nil, nil)
		}),
		c.Map(c.Seq(dollar, lbrace, name, rbrace), func(v c.Values) node.Node {
			return node.NewVariable(c.Get[string](v, 2), nil, nil)
		}),
		c.Map(c.Seq(dollar, lbrace, name, transform, rbrace), func(v c.Values) node.Node {
			return node.NewVariable(c.Get[string](v, 2), c.Get[*node.Transform](v, 3), nil)
		}),
		c.Map(c.Seq(dollar, lbrace, name, colon, nested, rbrace), func(v c.Values) node.Node {
			return node.NewVariable(c.Get[string](v, 2), nil, children(v, 4))
		}),
	)

	fillable = c.Or(caseTabstop, placeholder, tabstop, variable, choice)

	return c.Map(c.Opt(c.Many(c.Or(inner, text("$", `}\`)))), func(m c.Maybe[[]node.Node]) *node.Snippet {
		return node.NewSnippet(m.Value)
	})
}
