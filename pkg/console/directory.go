package console

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/utils"
	"go.uber.org/zap"
)

// PageSize is the fixed page size of directory listings
const PageSize = 100

// Flow publication statuses
const (
	StatusPublished = "published"
	StatusSaved     = "saved"
)

// FlowSummary is one entry of the flow directory
type FlowSummary struct {
	ARN         string `json:"arn"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"contactFlowType"`
	Status      string `json:"contactFlowStatus"`
}

// IsPublished reports whether the flow has been published
func (s FlowSummary) IsPublished() bool {
	return s.Status == StatusPublished
}

type listResponse struct {
	Results []FlowSummary `json:"results"`
}

// ListFlows returns the flows whose name contains filter. An empty filter
// lists every flow. Only the first page is requested.
func (c *Client) ListFlows(ctx context.Context, filter string) ([]FlowSummary, error) {
	params := map[string]string{
		"pageSize":   strconv.Itoa(PageSize),
		"startIndex": "0",
	}
	if filter != "" {
		encoded, err := json.Marshal(map[string]string{"name": filter})
		if err != nil {
			return nil, errors.Wrap(err, "encode filter")
		}
		params["filter"] = string(encoded)
	}

	resp, err := c.send(ctx, "list flows", &utils.HTTPRequest{
		URL:         "/connect/entity-search/contact-flows",
		Method:      http.MethodGet,
		QueryParams: params,
	}, true)
	if err != nil {
		return nil, err
	}

	var list listResponse
	if err := resp.DecodeJSON(&list); err != nil {
		return nil, connecterr.ProtocolDrift("list flows: %v", err)
	}

	c.logger.Debug("listed flows", zap.String("filter", filter), zap.Int("count", len(list.Results)))
	return list.Results, nil
}

// FindFlowByName returns the flow whose name is exactly name. The console
// filter is a substring match, so the listing is narrowed locally.
func (c *Client) FindFlowByName(ctx context.Context, name string) (FlowSummary, error) {
	flows, err := c.ListFlows(ctx, name)
	if err != nil {
		return FlowSummary{}, err
	}
	for _, f := range flows {
		if f.Name == name {
			return f, nil
		}
	}
	return FlowSummary{}, connecterr.Validation("no existing flow named %q", name)
}
