package console

import (
	"context"
	"encoding/base64"
	"net/http"
	"regexp"

	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/utils"
)

// editTokenPattern matches the token the edit page embeds in its bootstrap
// script. The same token must accompany every mutating request.
var editTokenPattern = regexp.MustCompile(`app\.constant\("token",\s*"([^"]+)"\)`)

// EditToken fetches a fresh edit token for one flow
func (c *Client) EditToken(ctx context.Context, arn string) (string, error) {
	resp, err := c.send(ctx, "fetch edit token", &utils.HTTPRequest{
		URL:         "/connect/contact-flows/edit",
		Method:      http.MethodGet,
		QueryParams: map[string]string{"id": arn},
	}, false)
	if err != nil {
		return "", err
	}
	return ExtractEditToken(resp.Text())
}

// ExtractEditToken pulls the edit token out of the edit page markup
func ExtractEditToken(html string) (string, error) {
	match := editTokenPattern.FindStringSubmatch(html)
	if match == nil {
		return "", connecterr.ProtocolDrift("edit token not found in edit page")
	}
	return match[1], nil
}

type importRequest struct {
	ContactFlowType string `json:"contactFlowType"`
	Token           string `json:"token"`
	FileData        string `json:"fileData"`
}

type importResult struct {
	ErrorType    *string `json:"errorType"`
	ErrorDetails string  `json:"errorDetails"`
	Content      string  `json:"contactFlowContent"`
}

// ImportFlow runs the console's import transform on content, which rewrites
// the ARNs of instance resources to those of the destination instance. It
// returns the transformed content without saving anything.
func (c *Client) ImportFlow(ctx context.Context, flowType, editToken string, content []byte) (string, error) {
	resp, err := c.send(ctx, "transform", &utils.HTTPRequest{
		URL:    "/connect/contact-flows/import",
		Method: http.MethodPost,
		QueryParams: map[string]string{
			"contactFlowType": flowType,
			"token":           editToken,
		},
		Body: importRequest{
			ContactFlowType: flowType,
			Token:           editToken,
			FileData:        base64.StdEncoding.EncodeToString(content),
		},
	}, true)
	if err != nil {
		return "", err
	}

	var results []importResult
	if err := resp.DecodeJSON(&results); err != nil {
		return "", connecterr.ProtocolDrift("transform: %v", err)
	}
	if len(results) == 0 {
		return "", connecterr.ProtocolDrift("transform: empty response")
	}
	if res := results[0]; res.ErrorType != nil {
		return "", connecterr.RemoteRejection("transform: %s: %s", *res.ErrorType, res.ErrorDetails)
	}
	return results[0].Content, nil
}

// SaveRequest is the body of the flow commit request
type SaveRequest struct {
	ARN                    string `json:"arn"`
	ResourceARN            string `json:"resourceArn"`
	ResourceID             string `json:"resourceId"`
	Organization           string `json:"organization"`
	OrganizationARN        string `json:"organizationArn"`
	OrganizationResourceID string `json:"organizationResourceId"`
	ContactFlowType        string `json:"contactFlowType"`
	ContactFlowContent     string `json:"contactFlowContent"`
	ContactFlowStatus      string `json:"contactFlowStatus"`
	Name                   string `json:"name"`
	Description            string `json:"description"`
	IsDefault              bool   `json:"isDefault"`
}

// SaveFlow commits a flow. The edit token must have been fetched for the
// same flow immediately before.
func (c *Client) SaveFlow(ctx context.Context, editToken string, req SaveRequest) error {
	_, err := c.send(ctx, "upload", &utils.HTTPRequest{
		URL:         "/connect/contact-flows/edit",
		Method:      http.MethodPost,
		QueryParams: map[string]string{"token": editToken},
		Body:        req,
	}, true)
	return err
}
