package main

import (
	"github.com/spf13/cobra"

	"github.com/petrijr/botflow/internal/config"
)

type rootOptions struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "botflowd",
		Short: "botflowd - chat-bot flow engine",
		Long: `botflowd runs one long-polling worker per bot, each interpreting the
bot's flow graph, and manages the stored graphs.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the YAML configuration file")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "Dotenv files loaded before the configuration")

	root.AddCommand(
		newRunCmd(opts),
		newValidateCmd(),
		newImportCmd(opts),
		newExportCmd(opts),
		newListCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath, o.envFiles...)
}
