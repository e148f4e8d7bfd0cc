package serve

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/walteh/gosnippet/pkg/config"
	"github.com/walteh/gosnippet/pkg/rpc"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve snippet sessions over JSON-RPC on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context())
		},
	}
}

func Run(ctx context.Context) error {
	return rpc.NewServer(config.Ctx(ctx)).Serve(ctx, os.Stdin, os.Stdout)
}
