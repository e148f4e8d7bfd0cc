package render

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/buffer"
	"github.com/walteh/gosnippet/pkg/config"
	"github.com/walteh/gosnippet/pkg/snippet"
	"github.com/walteh/gosnippet/pkg/variable"
)

type Handler struct {
	vars []string
	path string
}

func NewRenderCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "render [body|-]",
		Short: "print the text a snippet body expands to",
		Args:  cobra.ExactArgs(1),
	}

	cmd.Flags().StringArrayVar(&me.vars, "var", nil, "set a variable, as NAME=VALUE (repeatable)")
	cmd.Flags().StringVar(&me.path, "path", "", "file path the TM_* variables describe")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		body := args[0]
		if body == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return errors.Errorf("reading body from stdin: %w", err)
			}
			body = string(data)
		}
		text, err := me.Run(cmd.Context(), body)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, body string) (string, error) {
	cfg := config.Ctx(ctx)

	reg := cfg.Registry()
	for _, kv := range me.vars {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return "", errors.Errorf("invalid --var %q, want NAME=VALUE", kv)
		}
		reg.Register(name, variable.Static(value))
	}

	buf := buffer.NewMemory("", append([]buffer.MemoryOption{buffer.WithPath(me.path)}, cfg.CommentsFor(me.path).MemoryOptions()...)...)
	text, err := snippet.Render(ctx, body, reg.With(buf))
	if err != nil {
		return "", errors.Errorf("rendering: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Int("vars", len(me.vars)).Msg("rendered")
	return text, nil
}
