// Package console talks to the undocumented HTTP endpoints of the contact
// center admin console. All calls are authenticated with the session cookie
// obtained by package auth.
package console

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/logging"
	"github.com/tcmartin/connectsync/pkg/utils"
	"go.uber.org/zap"
)

// Client issues console requests on behalf of one authenticated session
type Client struct {
	http       *utils.HTTPClient
	baseURL    string
	cookieName string
	token      string
	logger     *zap.Logger
}

// ClientConfig contains the settings for a console client
type ClientConfig struct {
	// BaseURL is the instance root, e.g. https://acme.awsapps.com
	BaseURL string

	// CookieName is the session cookie carrying Token
	CookieName string

	// Token is the session bearer token
	Token string
}

// NewClient creates a console client. A nil logger disables logging.
func NewClient(httpClient *utils.HTTPClient, cfg ClientConfig, logger *zap.Logger) *Client {
	return &Client{
		http:       httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cookieName: cfg.CookieName,
		token:      cfg.Token,
		logger:     logging.OrNop(logger).Named("console"),
	}
}

// ModuleError is one entry of the error array the console returns when it
// rejects a flow
type ModuleError struct {
	ModuleID     string `json:"moduleId"`
	ErrorType    string `json:"errorType"`
	ErrorDetails string `json:"errorDetails"`
}

func (e ModuleError) String() string {
	return fmt.Sprintf("%s:%s:%s", e.ModuleID, e.ErrorType, e.ErrorDetails)
}

// send authenticates and executes req, then validates the response. When
// expectJSON is set, any non-JSON response is treated as protocol drift,
// which in practice means the session expired and the console served its
// login page.
func (c *Client) send(ctx context.Context, op string, req *utils.HTTPRequest, expectJSON bool) (*utils.HTTPResponse, error) {
	if c.token == "" {
		return nil, errors.Wrap(connecterr.ErrNotAuthenticated, op)
	}

	req.URL = c.baseURL + req.URL
	req.Cookies = map[string]string{c.cookieName: c.token}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	c.logger.Debug("console request",
		zap.String("op", op),
		zap.String("method", req.Method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", resp.Duration),
	)

	if expectJSON && !resp.IsJSON() {
		return nil, connecterr.ProtocolDrift("%s: unexpected HTML response (status %d)", op, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, rejection(op, resp)
	}
	return resp, nil
}

// rejection converts an HTTP error response into a remote rejection error,
// listing every module error when the body carries them
func rejection(op string, resp *utils.HTTPResponse) error {
	var moduleErrors []ModuleError
	if !resp.IsJSON() || resp.DecodeJSON(&moduleErrors) != nil || len(moduleErrors) == 0 {
		return connecterr.RemoteRejection("%s: status %d", op, resp.StatusCode)
	}

	var merr *multierror.Error
	for _, me := range moduleErrors {
		merr = multierror.Append(merr, errors.New(me.String()))
	}
	merr.ErrorFormat = func(errs []error) string {
		parts := make([]string, len(errs))
		for i, err := range errs {
			parts[i] = err.Error()
		}
		return strings.Join(parts, ", ")
	}

	return errors.Mark(errors.Wrapf(merr, "%s: status %d", op, resp.StatusCode), connecterr.ErrRemoteRejection)
}
