package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/grinbot/core/buildinfo"
	corecmd "github.com/m3rciful/grinbot/core/cmd"
	coreconfig "github.com/m3rciful/grinbot/core/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		command string
	)
	cmd := &cobra.Command{
		Use:           "grinbot",
		Short:         "Chat bot operating a local grin wallet",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Run(corecmd.Options{
				ConfigEnvVar:      "CONFIG_PATH",
				DefaultConfigPath: "config.yaml",
				ConfigPath:        cfgPath,
				Command:           command,
				Stdout:            cmd.OutOrStdout(),
				LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
					return coreconfig.Load(path)
				},
			})
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "Config file path (defaults to $CONFIG_PATH, then config.yaml).")
	cmd.Flags().StringVarP(&command, "command", "c", "", "Run a single command such as \"/balance\", print the reply and exit.")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}
