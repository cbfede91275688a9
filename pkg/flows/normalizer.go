package flows

import (
	"context"

	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/console"
	"github.com/tcmartin/connectsync/pkg/logging"
	"go.uber.org/zap"
)

// Normalizer fetches flows and canonicalizes them
type Normalizer struct {
	console Console
	logger  *zap.Logger
}

// NewNormalizer creates a normalizer
func NewNormalizer(c Console, logger *zap.Logger) *Normalizer {
	return &Normalizer{console: c, logger: logging.OrNop(logger).Named("flows")}
}

// Fetch exports the flow described by summary and returns its canonical
// document. The export payload omits the fields the editor normally fills
// in, so they are restored from the summary and the export envelope.
func (n *Normalizer) Fetch(ctx context.Context, summary console.FlowSummary) (*Document, error) {
	exported, err := n.console.ExportFlow(ctx, summary.ARN, summary.Status)
	if err != nil {
		return nil, err
	}

	doc, err := ParseDocument([]byte(exported.Content))
	if err != nil {
		return nil, connecterr.ProtocolDrift("export flow %q: %v", summary.Name, err)
	}
	doc.Canonicalize()

	meta := doc.Metadata()
	meta["status"] = exported.Status
	meta["name"] = summary.Name
	meta["description"] = summary.Description
	meta["type"] = summary.Type

	n.logger.Debug("fetched flow",
		zap.String("name", summary.Name),
		zap.String("status", exported.Status),
		zap.Int("modules", len(doc.Modules())),
	)
	return doc, nil
}
