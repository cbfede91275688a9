package flows

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/tcmartin/connectsync/pkg/console"
	"github.com/tcmartin/connectsync/pkg/logging"
	"github.com/tcmartin/connectsync/pkg/storage"
	"go.uber.org/zap"
)

// ProgressFunc is called after each flow of a batch
type ProgressFunc func(done, total int)

// ExportOptions controls an export run
type ExportOptions struct {
	// Filter restricts the run to flows whose name contains it
	Filter string

	// SkipUnpublished leaves out flows that were never published
	SkipUnpublished bool

	// KeepGoing continues after a failed flow and reports all failures at
	// the end
	KeepGoing bool

	Progress ProgressFunc
}

// ExportReport summarizes an export run
type ExportReport struct {
	Found    int
	Skipped  []string
	Exported []string
}

// Exporter downloads flows into a store
type Exporter struct {
	console    Console
	normalizer *Normalizer
	store      storage.FlowStore
	logger     *zap.Logger
}

// NewExporter creates an exporter
func NewExporter(c Console, store storage.FlowStore, logger *zap.Logger) *Exporter {
	return &Exporter{
		console:    c,
		normalizer: NewNormalizer(c, logger),
		store:      store,
		logger:     logging.OrNop(logger).Named("flows"),
	}
}

// Run lists the matching flows and saves the canonical document of each
func (e *Exporter) Run(ctx context.Context, opts ExportOptions) (ExportReport, error) {
	var report ExportReport

	summaries, err := e.console.ListFlows(ctx, opts.Filter)
	if err != nil {
		return report, err
	}
	report.Found = len(summaries)

	if opts.SkipUnpublished {
		kept := summaries[:0:0]
		for _, s := range summaries {
			if s.IsPublished() {
				kept = append(kept, s)
			} else {
				report.Skipped = append(report.Skipped, s.Name)
			}
		}
		if len(report.Skipped) > 0 {
			e.logger.Info("skipping unpublished flows", zap.Strings("flows", report.Skipped))
		}
		summaries = kept
	}

	var batch *multierror.Error
	for i, summary := range summaries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := e.export(ctx, summary); err != nil {
			if !opts.KeepGoing {
				return report, err
			}
			e.logger.Warn("export failed", zap.String("flow", summary.Name), zap.Error(err))
			batch = multierror.Append(batch, err)
		} else {
			report.Exported = append(report.Exported, summary.Name)
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(summaries))
		}
	}
	return report, batch.ErrorOrNil()
}

func (e *Exporter) export(ctx context.Context, summary console.FlowSummary) error {
	name := summary.Name
	doc, err := e.normalizer.Fetch(ctx, summary)
	if err != nil {
		return errors.Wrapf(err, "export %q", name)
	}
	data, err := doc.MarshalIndent()
	if err != nil {
		return errors.Wrapf(err, "encode %q", name)
	}
	path, err := e.store.Save(name, data)
	if err != nil {
		return err
	}
	e.logger.Debug("saved flow", zap.String("flow", name), zap.String("path", path))
	return nil
}

// ImportOptions controls an import run
type ImportOptions struct {
	Upload UploadOptions

	// KeepGoing continues after a failed flow and reports all failures at
	// the end
	KeepGoing bool

	Progress ProgressFunc
}

// ImportReport summarizes an import run
type ImportReport struct {
	Skipped  []string
	Uploaded []UploadResult
}

// Importer uploads local flows
type Importer struct {
	uploader *Uploader
	logger   *zap.Logger
}

// NewImporter creates an importer
func NewImporter(c Console, logger *zap.Logger) *Importer {
	return &Importer{
		uploader: NewUploader(c, logger),
		logger:   logging.OrNop(logger).Named("flows"),
	}
}

// Run uploads every valid local flow in order. Files that are not flow
// exports are skipped with a warning.
func (im *Importer) Run(ctx context.Context, files []storage.LocalFlow, opts ImportOptions) (ImportReport, error) {
	var report ImportReport
	if err := opts.Upload.Validate(); err != nil {
		return report, err
	}

	valid := make([]storage.LocalFlow, 0, len(files))
	for _, f := range files {
		if !f.Valid() {
			im.logger.Warn("skipping file that is not a flow export", zap.String("path", f.Path))
			report.Skipped = append(report.Skipped, f.Path)
			continue
		}
		valid = append(valid, f)
	}

	var batch *multierror.Error
	for i, f := range valid {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := im.uploader.Upload(ctx, f.Content, opts.Upload)
		if err != nil {
			err = errors.Wrapf(err, "upload %s", f.Path)
			if !opts.KeepGoing {
				return report, err
			}
			im.logger.Warn("upload failed", zap.String("path", f.Path), zap.Stringer("stage", res.Stage), zap.Error(err))
			batch = multierror.Append(batch, err)
		} else {
			report.Uploaded = append(report.Uploaded, res)
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(valid))
		}
	}
	return report, batch.ErrorOrNil()
}
