package auth

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/logging"
	"github.com/tcmartin/connectsync/pkg/utils"
	"go.uber.org/zap"
)

// Resolver classifies the login strategy of an instance
type Resolver struct {
	http        *utils.HTTPClient
	instanceURL func(alias string) string
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewResolver creates a resolver. instanceURL maps an alias to the console
// base URL of the instance.
func NewResolver(httpClient *utils.HTTPClient, instanceURL func(alias string) string, logger *zap.Logger) *Resolver {
	return &Resolver{
		http:        httpClient,
		instanceURL: instanceURL,
		validate:    validator.New(),
		logger:      logging.OrNop(logger).Named("auth"),
	}
}

// Resolve probes the login redirect endpoint of an instance. Instances using
// the console's own login form answer with a redirect to it; SSO-integrated
// instances answer without one and need a federated login. A failed probe
// means a bad alias and is never retried.
func (r *Resolver) Resolve(ctx context.Context, alias string) (Strategy, error) {
	if err := r.validate.Var(alias, "required,hostname_rfc1123"); err != nil {
		return 0, connecterr.Configuration("invalid instance alias %q", alias)
	}

	resp, err := r.http.Do(ctx, &utils.HTTPRequest{
		URL:    r.instanceURL(alias) + "/connect/login/redirect",
		Method: http.MethodPost,
		Form: map[string]string{
			"directoryAliasOrId": alias,
			"landat":             "/connect/home",
		},
	})
	if err != nil {
		r.logger.Debug("login probe failed", zap.String("alias", alias), zap.Error(err))
		return 0, connecterr.Configuration("invalid or unreachable instance: %s", alias)
	}

	strategy := StrategyFederated
	if resp.Headers.Get("Location") != "" {
		strategy = StrategyForm
	}

	r.logger.Debug("resolved login strategy",
		zap.String("alias", alias),
		zap.Stringer("strategy", strategy),
		zap.Int("status", resp.StatusCode),
	)
	return strategy, nil
}
