package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tcmartin/connectsync/pkg/auth"
)

func newAuthTypeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-type <alias>",
		Short: "Print the login strategy an instance requires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := auth.NewResolver(a.httpClient(), a.cfg.Console.InstanceURL, a.logger)
			strategy, err := resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, strategy)
			return nil
		},
	}
}
