package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tcmartin/connectsync/pkg/flows"
	"github.com/tcmartin/connectsync/pkg/storage"
	"go.uber.org/zap"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "export <alias>",
		Aliases: []string{"e"},
		Short:   "Download flows into canonical JSON files",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := args[0]
			client, err := a.connect(cmd.Context(), alias)
			if err != nil {
				return err
			}

			dest := a.v.GetString("dest")
			opts := flows.ExportOptions{
				Filter:          a.v.GetString("filter"),
				SkipUnpublished: a.v.GetBool("skip-unpublished"),
				KeepGoing:       a.v.GetBool("keep-going"),
				Progress:        progress(a.stdout, "Downloading flows"),
			}
			a.logger.Info("exporting flows", zap.String("alias", alias), zap.String("filter", opts.Filter), zap.String("dest", dest))

			report, err := flows.NewExporter(client, storage.NewFileStore(dest), a.logger).Run(cmd.Context(), opts)
			if len(report.Skipped) > 0 {
				fmt.Fprintf(a.stdout, "Skipped unpublished flows: %s\n", strings.Join(report.Skipped, ", "))
			}
			if err != nil {
				return err
			}
			if len(report.Exported) == 0 {
				fmt.Fprintln(a.stdout, "No flows found")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringP("filter", "f", "", "Only export flows whose name contains this text")
	flags.StringP("dest", "d", ".", "Download directory")
	flags.Bool("skip-unpublished", false, "Do not download flows that have never been published")
	flags.Bool("keep-going", false, "Continue after a failed flow and report every failure at the end")
	return cmd
}
