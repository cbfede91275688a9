package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tcmartin/connectsync/pkg/config"
	"github.com/tcmartin/connectsync/pkg/connecterr"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config <path>",
		Short: "Write the effective configuration to a JSON or YAML file",
		Long: `Write the configuration this invocation would run with, after flags,
CONNECTSYNC_* variables and --config are applied, so it can be reused
with --config. Credentials are never written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SaveConfig(a.cfg, args[0]); err != nil {
				return connecterr.MarkConfiguration(err, "write config")
			}
			fmt.Fprintf(a.stdout, "Configuration written to %s\n", args[0])
			return nil
		},
	}
}
