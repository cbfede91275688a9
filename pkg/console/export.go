package console

import (
	"context"
	"net/http"

	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/utils"
)

// ExportedFlow is the first element of the export envelope
type ExportedFlow struct {
	Content string `json:"contactFlowContent"`
	Status  string `json:"contactFlowStatus"`
}

// ExportFlow downloads the raw content of a flow in the given status.
// An empty status means published.
func (c *Client) ExportFlow(ctx context.Context, arn, status string) (ExportedFlow, error) {
	if status == "" {
		status = StatusPublished
	}

	resp, err := c.send(ctx, "export flow", &utils.HTTPRequest{
		URL:    "/connect/contact-flows/export",
		Method: http.MethodGet,
		QueryParams: map[string]string{
			"id":     arn,
			"status": status,
		},
	}, true)
	if err != nil {
		return ExportedFlow{}, err
	}

	var envelope []ExportedFlow
	if err := resp.DecodeJSON(&envelope); err != nil {
		return ExportedFlow{}, connecterr.ProtocolDrift("export flow: %v", err)
	}
	if len(envelope) == 0 {
		return ExportedFlow{}, connecterr.ProtocolDrift("export flow: empty response for %s", arn)
	}
	return envelope[0], nil
}
