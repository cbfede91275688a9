package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/flows"
	"github.com/tcmartin/connectsync/pkg/storage"
	"go.uber.org/zap"
)

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "import <alias> <pattern>...",
		Aliases: []string{"i"},
		Short:   "Upload local flow files over the flows with the same name",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias, patterns := args[0], args[1:]

			upload, err := a.uploadOptions()
			if err != nil {
				return err
			}
			if err := upload.Validate(); err != nil {
				return err
			}

			// read local files before logging in so bad input fails fast
			files, err := storage.NewFileStore(a.v.GetString("dir")).Load(patterns...)
			if err != nil {
				return err
			}

			client, err := a.connect(cmd.Context(), alias)
			if err != nil {
				return err
			}

			a.logger.Info("importing flows", zap.String("alias", alias), zap.Int("files", len(files)), zap.Bool("publish", upload.Publish))
			_, err = flows.NewImporter(client, a.logger).Run(cmd.Context(), files, flows.ImportOptions{
				Upload:    upload,
				KeepGoing: a.v.GetBool("keep-going"),
				Progress:  progress(a.stdout, "Uploading flows"),
			})
			return err
		},
	}

	flags := cmd.Flags()
	flags.String("dir", ".", "Directory relative patterns are resolved against")
	flags.Bool("publish", false, "Publish the flows instead of saving them as drafts")
	flags.Bool("no-fix-arns", false, "Do not point instance resources at the destination instance")
	flags.Bool("no-fix-lambda-arns", false, "Do not point Lambda functions at the destination account")
	flags.String("stage", "", "Replace the stage segment of <name>-<stage>-<suffix> Lambda functions")
	flags.String("encryption-id", "", "Encryption key id to set on encrypted inputs")
	flags.String("encryption-cert", "", "PEM file of the encryption certificate to set on encrypted inputs")
	flags.Bool("keep-going", false, "Continue after a failed flow and report every failure at the end")
	return cmd
}

func (a *app) uploadOptions() (flows.UploadOptions, error) {
	opts := flows.DefaultUploadOptions()
	opts.Publish = a.v.GetBool("publish")
	opts.FixARNs = !a.v.GetBool("no-fix-arns")
	opts.FixLambdaARNs = !a.v.GetBool("no-fix-lambda-arns")
	opts.Stage = a.v.GetString("stage")
	opts.EncryptionKeyID = a.v.GetString("encryption-id")

	if path := a.v.GetString("encryption-cert"); path != "" {
		cert, err := os.ReadFile(path)
		if err != nil {
			return opts, connecterr.MarkConfiguration(errors.Wrapf(err, "read %s", path), "encryption certificate")
		}
		opts.EncryptionCert = string(cert)
	}
	return opts, nil
}
