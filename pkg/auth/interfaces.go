// Package auth establishes an authenticated console session for an instance.
//
// The console supports two mutually exclusive login strategies. Resolver
// probes an instance to find out which one it uses, and Establisher carries
// out the login, driving a headless browser for form logins or exchanging
// ambient AWS credentials for federated ones.
package auth

import (
	"context"

	"github.com/aws/aws-sdk-go/service/connect/connectiface"
)

// BrowserLauncher starts headless browsers
type BrowserLauncher interface {
	// Launch starts a browser. The caller must Close it.
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running headless browser
type Browser interface {
	// NewPage opens a new tab
	NewPage(ctx context.Context) (Page, error)

	// Close shuts the browser down and releases every resource it holds
	Close() error
}

// Page is one browser tab
type Page interface {
	// Navigate loads url and waits for the load event
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until the element matching selector is visible
	WaitVisible(ctx context.Context, selector string) error

	// Type sends text to the element matching selector
	Type(ctx context.Context, selector, text string) error

	// Click clicks the element matching selector
	Click(ctx context.Context, selector string) error

	// WaitNavigation blocks until the navigation triggered by the last Click
	// has completed
	WaitNavigation(ctx context.Context) error

	// WaitBodyContains blocks until the page body contains text
	WaitBodyContains(ctx context.Context, text string) error

	// Cookie returns the value of the named cookie for the current page
	Cookie(ctx context.Context, name string) (string, bool, error)
}

// FederationClientFactory builds the Connect API client used for federated
// logins. It is only called when a federated login actually happens, so form
// logins never need AWS credentials.
type FederationClientFactory func() (connectiface.ConnectAPI, error)
