package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/connect"
	"github.com/aws/aws-sdk-go/service/connect/connectiface"
	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/console/consoletest"
	"github.com/tcmartin/connectsync/pkg/utils"
)

// fakePage scripts the outcome of a form login
type fakePage struct {
	mu       sync.Mutex
	typed    map[string]string
	visited  []string
	outcome  string // "success", "failure" or "hang"
	cookies  map[string]string
	failStep string
}

func (p *fakePage) step(name string) error {
	if p.failStep == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.visited = append(p.visited, url)
	p.mu.Unlock()
	return p.step("navigate")
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	return p.step("visible")
}

func (p *fakePage) Type(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	p.typed[selector] = text
	p.mu.Unlock()
	return p.step("type")
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	return p.step("click")
}

func (p *fakePage) WaitNavigation(ctx context.Context) error {
	if p.outcome == "success" {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) WaitBodyContains(ctx context.Context, text string) error {
	if p.outcome == "failure" && text == loginFailedMarker {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) Cookie(ctx context.Context, name string) (string, bool, error) {
	v, ok := p.cookies[name]
	return v, ok, nil
}

type fakeBrowser struct {
	page   *fakePage
	closed bool
}

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) { return b.page, nil }
func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

type fakeLauncher struct {
	browser  *fakeBrowser
	launches int
}

func (l *fakeLauncher) Launch(ctx context.Context) (Browser, error) {
	l.launches++
	return l.browser, nil
}

func newFakeLauncher(outcome string, cookies map[string]string) *fakeLauncher {
	return &fakeLauncher{browser: &fakeBrowser{page: &fakePage{
		typed:   map[string]string{},
		outcome: outcome,
		cookies: cookies,
	}}}
}

// mockConnect implements the federation call of the Connect API
type mockConnect struct {
	connectiface.ConnectAPI
	mock.Mock
}

func (m *mockConnect) GetFederationTokenWithContext(ctx aws.Context, in *connect.GetFederationTokenInput, opts ...request.Option) (*connect.GetFederationTokenOutput, error) {
	args := m.Called(aws.StringValue(in.InstanceId))
	out, _ := args.Get(0).(*connect.GetFederationTokenOutput)
	return out, args.Error(1)
}

func newEstablisher(t *testing.T, fake *consoletest.FakeConsole, launcher BrowserLauncher, api connectiface.ConnectAPI) *Establisher {
	t.Helper()
	instanceURL := func(string) string { return fake.URL() }
	resolver := NewResolver(utils.NewHTTPClient(5*time.Second), instanceURL, nil)
	return NewEstablisher(EstablisherConfig{
		InstanceURL:   instanceURL,
		SessionCookie: consoletest.DefaultCookie,
		LoginTimeout:  time.Second,
	}, resolver, launcher, func() (connectiface.ConnectAPI, error) { return api, nil }, nil)
}

func TestFormLoginSuccess(t *testing.T) {
	fake := consoletest.New("tok")
	defer fake.Close()
	launcher := newFakeLauncher("success", map[string]string{consoletest.DefaultCookie: "tok"})

	e := newEstablisher(t, fake, launcher, nil)
	session, err := e.Login(context.Background(), "acme", FormLogin{Username: "admin", Password: "s3cret"})
	require.NoError(t, err)

	assert.Equal(t, "tok", session.Token)
	assert.Equal(t, StrategyForm, session.Strategy)
	assert.True(t, session.Valid())
	assert.NotContains(t, session.String(), "tok")

	page := launcher.browser.page
	assert.Equal(t, "admin", page.typed[usernameSelector])
	assert.Equal(t, "s3cret", page.typed[passwordSelector])
	assert.Equal(t, []string{fake.URL() + "/connect/home"}, page.visited)
	assert.True(t, launcher.browser.closed)
}

func TestFormLoginRejected(t *testing.T) {
	fake := consoletest.New("tok")
	defer fake.Close()
	launcher := newFakeLauncher("failure", nil)

	_, err := newEstablisher(t, fake, launcher, nil).Login(context.Background(), "acme", FormLogin{Username: "admin", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, cerr.Is(err, connecterr.ErrAuthentication))
	assert.Contains(t, err.Error(), "invalid username or password")
	assert.True(t, launcher.browser.closed)
}

func TestFormLoginMissingCookie(t *testing.T) {
	fake := consoletest.New("tok")
	defer fake.Close()
	launcher := newFakeLauncher("success", map[string]string{"other": "x"})

	_, err := newEstablisher(t, fake, launcher, nil).Login(context.Background(), "acme", FormLogin{Username: "a", Password: "b"})
	require.Error(t, err)
	assert.True(t, cerr.Is(err, connecterr.ErrAuthentication))
	assert.True(t, cerr.Is(err, connecterr.ErrProtocolDrift))
	assert.Contains(t, err.Error(), "session token")
	assert.True(t, launcher.browser.closed)
}

func TestFormLoginTimesOut(t *testing.T) {
	fake := consoletest.New("tok")
	defer fake.Close()
	launcher := newFakeLauncher("hang", nil)

	e := newEstablisher(t, fake, launcher, nil)
	e.cfg.LoginTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := e.Login(context.Background(), "acme", FormLogin{Username: "a", Password: "b"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, cerr.Is(err, connecterr.ErrAuthentication))
	assert.Contains(t, err.Error(), "did not complete within")
	assert.True(t, launcher.browser.closed)
}

func TestFormLoginStepFailureClosesBrowser(t *testing.T) {
	fake := consoletest.New("tok")
	defer fake.Close()
	launcher := newFakeLauncher("success", nil)
	launcher.browser.page.failStep = "visible"

	_, err := newEstablisher(t, fake, launcher, nil).Login(context.Background(), "acme", FormLogin{Username: "a", Password: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wait for login form")
	assert.True(t, launcher.browser.closed)
}

func TestFormLoginRequiresCredentials(t *testing.T) {
	fake := consoletest.New("tok")
	defer fake.Close()
	launcher := newFakeLauncher("success", nil)

	_, err := newEstablisher(t, fake, launcher, nil).Login(context.Background(), "acme", FormLogin{Username: "a"})
	assert.True(t, cerr.Is(err, connecterr.ErrConfiguration))
	assert.Zero(t, launcher.launches)
}

func TestFederatedLogin(t *testing.T) {
	fake := consoletest.New("tok")
	defer fake.Close()

	api := &mockConnect{}
	api.On("GetFederationTokenWithContext", "inst-1").Return(&connect.GetFederationTokenOutput{
		Credentials: &connect.Credentials{AccessToken: aws.String("fed-token")},
	}, nil)
	launcher := newFakeLauncher("success", nil)

	session, err := newEstablisher(t, fake, launcher, api).Login(context.Background(), "acme", FederatedLogin{InstanceID: "inst-1"})
	require.NoError(t, err)
	assert.Equal(t, "fed-token", session.Token)
	assert.Equal(t, StrategyFederated, session.Strategy)
	assert.Zero(t, launcher.launches)
	api.AssertExpectations(t)
}

func TestFederatedLoginFailures(t *testing.T) {
	fake := consoletest.New("tok")
	defer fake.Close()

	api := &mockConnect{}
	api.On("GetFederationTokenWithContext", "denied").Return(nil, errors.New("AccessDeniedException"))
	api.On("GetFederationTokenWithContext", "empty").Return(&connect.GetFederationTokenOutput{}, nil)
	e := newEstablisher(t, fake, nil, api)

	_, err := e.Login(context.Background(), "acme", FederatedLogin{})
	assert.True(t, cerr.Is(err, connecterr.ErrConfiguration))

	_, err = e.Login(context.Background(), "acme", FederatedLogin{InstanceID: "denied"})
	assert.True(t, cerr.Is(err, connecterr.ErrAuthentication))
	assert.Contains(t, err.Error(), "AccessDeniedException")

	_, err = e.Login(context.Background(), "acme", FederatedLogin{InstanceID: "empty"})
	assert.True(t, cerr.Is(err, connecterr.ErrAuthentication))
}

func TestEstablishDispatchesOnProbe(t *testing.T) {
	fake := consoletest.New("tok")
	defer fake.Close()
	fake.FormAuth = true
	launcher := newFakeLauncher("success", map[string]string{consoletest.DefaultCookie: "tok"})

	var asked []Strategy
	creds := func(ctx context.Context, s Strategy) (LoginMethod, error) {
		asked = append(asked, s)
		return FormLogin{Username: "a", Password: "b"}, nil
	}

	session, err := newEstablisher(t, fake, launcher, nil).Establish(context.Background(), "acme", creds)
	require.NoError(t, err)
	assert.Equal(t, StrategyForm, session.Strategy)
	assert.Equal(t, []Strategy{StrategyForm}, asked)
}

func TestEstablishRejectsMismatchedCredentials(t *testing.T) {
	fake := consoletest.New("tok")
	defer fake.Close()

	creds := func(ctx context.Context, s Strategy) (LoginMethod, error) {
		return FormLogin{Username: "a", Password: "b"}, nil
	}
	_, err := newEstablisher(t, fake, nil, nil).Establish(context.Background(), "acme", creds)
	require.Error(t, err)
	assert.True(t, cerr.Is(err, connecterr.ErrConfiguration))
	assert.Contains(t, err.Error(), "requires a Federated login")
}
