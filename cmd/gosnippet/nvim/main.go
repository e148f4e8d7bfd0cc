package nvim

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/walteh/gosnippet/pkg/config"
	nvimhost "github.com/walteh/gosnippet/pkg/nvim"
)

func NewNvimCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "nvim",
		Short: "host snippet sessions for neovim",
		Long: `Host snippet sessions for the neovim instance that started this process
with jobstart({"gosnippet", "nvim"}, { rpc = true }). The host defines the
global gosnippet Lua module once connected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return nvimhost.Serve(ctx, config.Ctx(ctx), os.Stdin, os.Stdout)
		},
	}
}
