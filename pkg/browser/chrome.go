// Package browser drives a headless Chromium through the DevTools protocol.
// It implements the auth.BrowserLauncher capability used by form logins.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/tcmartin/connectsync/pkg/auth"
	"github.com/tcmartin/connectsync/pkg/logging"
	"go.uber.org/zap"
)

const pollInterval = 100 * time.Millisecond

// Config contains the launch settings
type Config struct {
	// ExecPath overrides the Chromium executable
	ExecPath string

	// Headless runs without a window
	Headless bool
}

// Launcher starts Chromium instances
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewLauncher creates a launcher
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	return &Launcher{cfg: cfg, logger: logging.OrNop(logger).Named("browser")}
}

// Launch implements auth.BrowserLauncher. The browser lives until Close is
// called; ctx only bounds the start-up.
func (l *Launcher) Launch(ctx context.Context) (auth.Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-extensions", true),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logger.Sugar().Debugf),
		chromedp.WithErrorf(l.logger.Sugar().Debugf),
	)

	b := &Browser{
		ctx:    browserCtx,
		logger: l.logger,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}

	// Run with no actions starts the browser process
	if err := start(ctx, browserCtx, b.cancel); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	l.logger.Debug("browser started", zap.String("exec_path", l.cfg.ExecPath))
	return b, nil
}

// Browser is a running Chromium instance
type Browser struct {
	ctx    context.Context
	cancel func()
	logger *zap.Logger
}

// NewPage implements auth.Browser
func (b *Browser) NewPage(ctx context.Context) (auth.Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	if err := start(ctx, tabCtx, cancel); err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return &Page{ctx: tabCtx, cancel: cancel}, nil
}

// Close implements auth.Browser. It closes the browser gracefully, then
// releases the allocator, which kills the process if it is still alive.
func (b *Browser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	if err != nil && err != context.Canceled {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	b.logger.Debug("browser closed")
	return nil
}

// Page is a browser tab
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc

	// loaded is closed by the first document load after the last click
	loaded     chan struct{}
	stopListen context.CancelFunc
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	return runBounded(ctx, p.ctx, actions...)
}

// Navigate implements auth.Page
func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

// WaitVisible implements auth.Page
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Type implements auth.Page
func (p *Page) Type(ctx context.Context, selector, text string) error {
	return p.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// Click implements auth.Page
// Click implements auth.Page. The load event listener used by
// WaitNavigation is armed before the click so a fast navigation is not missed.
func (p *Page) Click(ctx context.Context, selector string) error {
	p.listenForLoad()
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *Page) listenForLoad() {
	if p.stopListen != nil {
		p.stopListen()
	}
	loaded := make(chan struct{})
	var once sync.Once
	listenCtx, stop := context.WithCancel(p.ctx)
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			once.Do(func() { close(loaded) })
		}
	})
	p.loaded, p.stopListen = loaded, stop
}

// WaitNavigation implements auth.Page. It returns once a document has loaded
// after the last click, which includes a reload of the same URL.
func (p *Page) WaitNavigation(ctx context.Context) error {
	if p.loaded == nil {
		return p.poll(ctx, `document.readyState === "complete"`)
	}
	defer p.stopListen()

	select {
	case <-p.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitBodyContains implements auth.Page
func (p *Page) WaitBodyContains(ctx context.Context, text string) error {
	expr := fmt.Sprintf(`!!document.querySelector("body") && document.querySelector("body").innerHTML.includes(%q)`, text)
	return p.poll(ctx, expr)
}

// poll evaluates expr until it is true or ctx ends. Evaluation errors are
// expected while a navigation replaces the document and are ignored.
func (p *Page) poll(ctx context.Context, expr string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var ok bool
		if err := p.run(ctx, chromedp.Evaluate(expr, &ok)); err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cookie implements auth.Page
func (p *Page) Cookie(ctx context.Context, name string) (string, bool, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return "", false, err
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, true, nil
		}
	}
	return "", false, nil
}

// start allocates the browser or tab behind target. The first Run must use
// the chromedp context itself because the allocation is tied to the context
// it runs on, so ctx is honoured by releasing target when it ends first.
func start(ctx context.Context, target context.Context, release func()) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(target)
	}()

	select {
	case err := <-done:
		if err != nil {
			release()
		}
		return err
	case <-ctx.Done():
		release()
		return ctx.Err()
	}
}

// runBounded runs actions against the chromedp context target while honouring
// the caller's ctx. Cancelling a context derived from a chromedp context only
// aborts the actions, leaving the tab and browser alive.
func runBounded(ctx context.Context, target context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(target)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}
