package auth

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/connect"
	"github.com/cockroachdb/errors"
	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/logging"
	"go.uber.org/zap"
)

// Form login selectors and markers of the console login page
const (
	usernameSelector    = "#wdc_username"
	passwordSelector    = "#wdc_password"
	loginButtonSelector = "#wdc_login_button"
	loginFailedMarker   = "Authentication Failed"
)

// EstablisherConfig contains the settings of an Establisher
type EstablisherConfig struct {
	// InstanceURL maps an alias to the console base URL of the instance
	InstanceURL func(alias string) string

	// SessionCookie is the cookie holding the session token after a form login
	SessionCookie string

	// LoginTimeout bounds a form login from browser start to cookie read
	LoginTimeout time.Duration

	// FederationTimeout bounds the federation token exchange
	FederationTimeout time.Duration
}

// Establisher logs in to an instance
type Establisher struct {
	cfg        EstablisherConfig
	resolver   *Resolver
	launcher   BrowserLauncher
	federation FederationClientFactory
	logger     *zap.Logger
}

// NewEstablisher creates an Establisher. launcher is only used for form
// logins and federation only for federated ones.
func NewEstablisher(cfg EstablisherConfig, resolver *Resolver, launcher BrowserLauncher, federation FederationClientFactory, logger *zap.Logger) *Establisher {
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = 60 * time.Second
	}
	if cfg.FederationTimeout <= 0 {
		cfg.FederationTimeout = 30 * time.Second
	}
	return &Establisher{
		cfg:        cfg,
		resolver:   resolver,
		launcher:   launcher,
		federation: federation,
		logger:     logging.OrNop(logger).Named("auth"),
	}
}

// CredentialsFunc supplies the login inputs once the strategy is known, so
// that operators are only prompted for what the instance actually needs
type CredentialsFunc func(ctx context.Context, strategy Strategy) (LoginMethod, error)

// Establish resolves the strategy of alias, asks creds for the matching
// inputs and logs in
func (e *Establisher) Establish(ctx context.Context, alias string, creds CredentialsFunc) (*Session, error) {
	strategy, err := e.resolver.Resolve(ctx, alias)
	if err != nil {
		return nil, err
	}

	method, err := creds(ctx, strategy)
	if err != nil {
		return nil, err
	}
	if method.Strategy() != strategy {
		return nil, connecterr.Configuration("instance %s requires a %s login, got %s credentials", alias, strategy, method.Strategy())
	}

	return e.Login(ctx, alias, method)
}

// Login performs the login described by method
func (e *Establisher) Login(ctx context.Context, alias string, method LoginMethod) (*Session, error) {
	var (
		token string
		err   error
	)
	switch m := method.(type) {
	case FormLogin:
		token, err = e.loginForm(ctx, alias, m)
	case FederatedLogin:
		token, err = e.loginFederated(ctx, m)
	default:
		return nil, errors.AssertionFailedf("unknown login method %T", method)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("logged in", zap.String("alias", alias), zap.Stringer("strategy", method.Strategy()))
	return &Session{Alias: alias, Token: token, Strategy: method.Strategy()}, nil
}

// loginForm drives the console login form in a headless browser. The
// browser is closed on every path out of this function.
func (e *Establisher) loginForm(ctx context.Context, alias string, login FormLogin) (string, error) {
	if login.Username == "" || login.Password == "" {
		return "", connecterr.Configuration("username and password are required for instance %s", alias)
	}
	if e.launcher == nil {
		return "", connecterr.Configuration("instance %s requires a form login but no browser is configured", alias)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.LoginTimeout)
	defer cancel()

	e.logger.Debug("starting browser", zap.String("alias", alias))
	browser, err := e.launcher.Launch(ctx)
	if err != nil {
		return "", errors.Wrap(err, "start browser")
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			e.logger.Warn("failed to close browser", zap.Error(cerr))
		}
	}()

	page, err := browser.NewPage(ctx)
	if err != nil {
		return "", errors.Wrap(err, "open page")
	}

	e.logger.Info("logging in", zap.String("alias", alias), zap.String("username", login.Username))
	steps := []struct {
		name string
		run  func() error
	}{
		{"open login page", func() error { return page.Navigate(ctx, e.cfg.InstanceURL(alias)+"/connect/home") }},
		{"wait for login form", func() error { return page.WaitVisible(ctx, usernameSelector) }},
		{"enter username", func() error { return page.Type(ctx, usernameSelector, login.Username) }},
		{"enter password", func() error { return page.Type(ctx, passwordSelector, login.Password) }},
		{"submit login form", func() error { return page.Click(ctx, loginButtonSelector) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return "", e.loginError(ctx, step.name, err)
		}
	}

	ok, err := raceLogin(ctx, page)
	if err != nil {
		return "", e.loginError(ctx, "wait for login result", err)
	}
	if !ok {
		return "", connecterr.Authentication("invalid username or password")
	}

	token, found, err := page.Cookie(ctx, e.cfg.SessionCookie)
	if err != nil {
		return "", e.loginError(ctx, "read session cookie", err)
	}
	if !found || token == "" {
		return "", errors.Mark(
			connecterr.Authentication("login succeeded but session token %s is missing", e.cfg.SessionCookie),
			connecterr.ErrProtocolDrift,
		)
	}
	return token, nil
}

func (e *Establisher) loginError(ctx context.Context, step string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return connecterr.MarkAuthentication(err, "login did not complete within "+e.cfg.LoginTimeout.String()+" ("+step+")")
	}
	return connecterr.MarkAuthentication(err, step)
}

type loginOutcome struct {
	success bool
	err     error
}

// raceLogin waits for either the post-login navigation or the failure marker,
// whichever settles first. The loser is cancelled.
func raceLogin(ctx context.Context, page Page) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan loginOutcome, 2)
	go func() {
		err := page.WaitNavigation(ctx)
		outcomes <- loginOutcome{success: true, err: err}
	}()
	go func() {
		err := page.WaitBodyContains(ctx, loginFailedMarker)
		outcomes <- loginOutcome{success: false, err: err}
	}()

	select {
	case o := <-outcomes:
		if o.err != nil {
			return false, o.err
		}
		return o.success, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// loginFederated exchanges the ambient AWS credentials for a federation token
// scoped to the instance
func (e *Establisher) loginFederated(ctx context.Context, login FederatedLogin) (string, error) {
	if login.InstanceID == "" {
		return "", connecterr.Configuration("an instance id is required for federated login")
	}
	if e.federation == nil {
		return "", connecterr.Configuration("federated login is not configured")
	}

	client, err := e.federation()
	if err != nil {
		return "", connecterr.MarkConfiguration(err, "create AWS session")
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.FederationTimeout)
	defer cancel()

	e.logger.Info("requesting federation token", zap.String("instance_id", login.InstanceID))
	out, err := client.GetFederationTokenWithContext(ctx, &connect.GetFederationTokenInput{
		InstanceId: aws.String(login.InstanceID),
	})
	if err != nil {
		return "", connecterr.MarkAuthentication(err, "federation token exchange failed")
	}
	if out.Credentials == nil || aws.StringValue(out.Credentials.AccessToken) == "" {
		return "", connecterr.Authentication("federation token exchange returned no access token")
	}
	return aws.StringValue(out.Credentials.AccessToken), nil
}
