package flows

import (
	"context"

	"github.com/tcmartin/connectsync/pkg/console"
)

// Console is the part of the console API the engine uses. It is satisfied by
// *console.Client.
type Console interface {
	ListFlows(ctx context.Context, filter string) ([]console.FlowSummary, error)
	FindFlowByName(ctx context.Context, name string) (console.FlowSummary, error)
	ExportFlow(ctx context.Context, arn, status string) (console.ExportedFlow, error)
	EditToken(ctx context.Context, arn string) (string, error)
	ImportFlow(ctx context.Context, flowType, editToken string, content []byte) (string, error)
	SaveFlow(ctx context.Context, editToken string, req console.SaveRequest) error
}

var _ Console = (*console.Client)(nil)
