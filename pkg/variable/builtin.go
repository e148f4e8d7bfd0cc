package variable

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/walteh/gosnippet/pkg/indent"
	"github.com/walteh/gosnippet/pkg/position"
)

// https://code.visualstudio.com/docs/editor/userdefinedsnippets#_variables
func (r *Registry) registerBuiltins() {
	clock := func(layout string) Func {
		return func(context.Context, Env) (string, error) {
			return r.now().Format(layout), nil
		}
	}
	path := func(fn func(string) string) Func {
		return func(ctx context.Context, env Env) (string, error) {
			p, err := env.FilePath(ctx)
			if err != nil || p == "" {
				return "", err
			}
			return fn(p), nil
		}
	}
	register := func(name string) Func {
		return func(ctx context.Context, env Env) (string, error) {
			text, err := env.Register(ctx, name)
			if err != nil {
				return "", err
			}
			return indent.TrimBaseIndent(text), nil
		}
	}

	r.Register("TM_SELECTED_TEXT", register(`"`))
	r.Register("TM_CURRENT_LINE", func(ctx context.Context, env Env) (string, error) {
		return env.CurrentLine(ctx)
	})
	r.Register("TM_CURRENT_WORD", currentWord)
	r.Register("TM_LINE_INDEX", func(ctx context.Context, env Env) (string, error) {
		cur, err := env.Cursor(ctx)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(cur.Line), nil
	})
	r.Register("TM_LINE_NUMBER", func(ctx context.Context, env Env) (string, error) {
		cur, err := env.Cursor(ctx)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(cur.Line + 1), nil
	})
	r.Register("TM_FILENAME", path(filepath.Base))
	r.Register("TM_FILENAME_BASE", path(func(p string) string {
		base := filepath.Base(p)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}))
	r.Register("TM_DIRECTORY", path(filepath.Dir))
	r.Register("TM_FILEPATH", path(func(p string) string { return p }))
	r.Register("RELATIVE_FILEPATH", path(func(p string) string {
		if r.workspace == "" {
			return p
		}
		rel, err := filepath.Rel(r.workspace, p)
		if err != nil {
			return p
		}
		return rel
	}))
	r.Register("CLIPBOARD", register("+"))
	r.Register("WORKSPACE_NAME", func(context.Context, Env) (string, error) {
		if r.workspace == "" {
			return "", nil
		}
		return filepath.Base(r.workspace), nil
	})
	r.Register("WORKSPACE_FOLDER", func(context.Context, Env) (string, error) {
		return r.workspace, nil
	})
	r.Register("CURSOR_INDEX", Static("0"))
	r.Register("CURSOR_NUMBER", Static("1"))

	r.Register("CURRENT_YEAR", clock("2006"))
	r.Register("CURRENT_YEAR_SHORT", clock("06"))
	r.Register("CURRENT_MONTH", clock("01"))
	r.Register("CURRENT_MONTH_NAME", clock("January"))
	r.Register("CURRENT_MONTH_NAME_SHORT", clock("Jan"))
	r.Register("CURRENT_DATE", clock("02"))
	r.Register("CURRENT_DAY_NAME", clock("Monday"))
	r.Register("CURRENT_DAY_NAME_SHORT", clock("Mon"))
	r.Register("CURRENT_HOUR", clock("15"))
	r.Register("CURRENT_MINUTE", clock("04"))
	r.Register("CURRENT_SECOND", clock("05"))
	r.Register("CURRENT_TIMEZONE_OFFSET", clock("-07:00"))
	r.Register("CURRENT_SECONDS_UNIX", func(context.Context, Env) (string, error) {
		return strconv.FormatInt(r.now().Unix(), 10), nil
	})

	r.Register("RANDOM", func(context.Context, Env) (string, error) {
		return strconv.Itoa(100_000 + r.intN(900_000)), nil
	})
	r.Register("RANDOM_HEX", func(context.Context, Env) (string, error) {
		return fmt.Sprintf("%x", 0x100_000+r.intN(0xf00_000)), nil
	})
	r.Register("UUID", func(context.Context, Env) (string, error) {
		return uuid.NewString(), nil
	})

	r.Register("BLOCK_COMMENT_START", blockComment(0, 's'))
	r.Register("BLOCK_COMMENT_END", blockComment(1, 'e'))
	r.Register("LINE_COMMENT", func(ctx context.Context, env Env) (string, error) {
		cs, err := env.CommentString(ctx)
		if err != nil || !strings.HasSuffix(cs, "%s") {
			return "", err
		}
		return strings.TrimSuffix(cs, "%s"), nil
	})

}

// blockComment takes a side of a wrapping commentstring such as "/* %s */",
// and otherwise the leader flagged with flag in the comments option.
func blockComment(side int, flag rune) Func {
	return func(ctx context.Context, env Env) (string, error) {
		cs, err := env.CommentString(ctx)
		if err != nil {
			return "", err
		}
		if cs != "" && !strings.HasSuffix(cs, "%s") {
			parts := strings.SplitN(cs, "%s", 2)
			if side < len(parts) {
				return strings.TrimSpace(parts[side]), nil
			}
			return "", nil
		}
		comments, err := env.Comments(ctx)
		if err != nil {
			return "", err
		}
		found := ""
		for _, com := range strings.Split(comments, ",") {
			flags, leader, ok := strings.Cut(com, ":")
			if ok && strings.ContainsRune(flags, flag) {
				found = leader
			}
		}
		return found, nil
	}
}

func currentWord(ctx context.Context, env Env) (string, error) {
	line, err := env.CurrentLine(ctx)
	if err != nil {
		return "", err
	}
	cur, err := env.Cursor(ctx)
	if err != nil {
		return "", err
	}
	runes := []rune(line)
	at := len([]rune(position.SliceUTF16(line, 0, cur.Character)))
	isWord := func(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }
	start, end := at, at
	for start > 0 && isWord(runes[start-1]) {
		start--
	}
	for end < len(runes) && isWord(runes[end]) {
		end++
	}
	return string(runes[start:end]), nil
}
