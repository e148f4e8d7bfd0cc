package main

import (
	"context"
	"os"
	"runtime/debug"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/cmd/gosnippet/nvim"
	"github.com/walteh/gosnippet/cmd/gosnippet/render"
	"github.com/walteh/gosnippet/cmd/gosnippet/serve"
	"github.com/walteh/gosnippet/pkg/config"
	logging "github.com/walteh/gosnippet/pkg/debug"
)

func main() {
	if err := run(); err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	debug      bool
}

func run() error {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "gosnippet",
		Short:         "Expand and navigate VSCode-style snippets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default: .gosnippet.{hcl,yaml,yml} in the working directory)")
	rootCmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		ctx, err := g.setup(cmd.Context())
		if err != nil {
			return err
		}
		cmd.SetContext(ctx)
		return nil
	}

	cmdVersion := &cobra.Command{
		Use: "raw-version",
		Run: func(cmdz *cobra.Command, args []string) {
			cmdz.Println(rootCmd.Version)
		},
		Hidden: true,
	}

	rootCmd.AddCommand(cmdVersion)
	rootCmd.AddCommand(render.NewRenderCommand())
	rootCmd.AddCommand(serve.NewServeCommand())
	rootCmd.AddCommand(nvim.NewNvimCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}

	return nil
}

// setup loads the config and puts it and a stderr logger into ctx. Stdout
// belongs to the serving commands.
func (g *globals) setup(ctx context.Context) (context.Context, error) {
	fs := afero.NewOsFs()

	var cfg *config.Config
	var err error
	if g.configPath != "" {
		cfg, err = config.Load(fs, g.configPath)
	} else {
		var wd string
		wd, err = os.Getwd()
		if err != nil {
			return nil, errors.Errorf("getting working directory: %w", err)
		}
		cfg, err = config.LoadDir(fs, wd)
	}
	if err != nil {
		return nil, err
	}

	level := cfg.Level()
	if g.debug {
		level = zerolog.DebugLevel
	}
	logger := logging.NewLogger(os.Stderr, logging.Options{
		Level:   level,
		Color:   !color.NoColor,
		Caller:  g.debug,
		Service: "gosnippet",
	})

	ctx = logger.WithContext(ctx)
	return config.WithContext(ctx, cfg), nil
}
