package main

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcmartin/connectsync/pkg/auth"
	"github.com/tcmartin/connectsync/pkg/browser"
	"github.com/tcmartin/connectsync/pkg/config"
	"github.com/tcmartin/connectsync/pkg/connecterr"
	"github.com/tcmartin/connectsync/pkg/console"
	"github.com/tcmartin/connectsync/pkg/logging"
	"github.com/tcmartin/connectsync/pkg/utils"
	"go.uber.org/zap"
)

// envPrefix prefixes the environment variables mirroring the flags, e.g.
// CONNECTSYNC_PASSWORD for --password
const envPrefix = "CONNECTSYNC"

// app holds the state shared by the commands of one invocation
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger

	// launcher and federation are replaced in tests
	launcher   auth.BrowserLauncher
	federation auth.FederationClientFactory
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{stdin: stdin, stdout: stdout, stderr: stderr}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           AppName,
		Short:         "Synchronize contact flows with local files",
		Long:          "Export contact flows from an instance's admin console into canonical JSON files, and upload them back.",
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a JSON or YAML config file")
	flags.StringP("username", "u", "", "Console admin username")
	flags.StringP("password", "p", "", "Console admin password")
	flags.String("instance-id", "", "Instance id, required by federated logins")
	flags.StringP("chrome", "c", "", "Chromium path override")
	flags.Bool("headless", true, "Run the login browser without a window")
	flags.Duration("login-timeout", 0, "Time allowed for a form login")
	flags.Duration("http-timeout", 0, "Time allowed for each console request")
	flags.Float64("rate-limit", 0, "Maximum console requests per second, 0 for no limit")
	flags.String("base-url", "", "Console URL template receiving the instance alias")
	flags.String("session-cookie", "", "Name of the console session cookie")
	flags.String("region", "", "AWS region for federated logins")
	flags.String("profile", "", "AWS shared config profile for federated logins")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (console, json)")

	rootCmd.AddCommand(newExportCmd(a), newImportCmd(a), newAuthTypeCmd(a), newConfigCmd(a))
	return rootCmd
}

// setup reads flags, CONNECTSYNC_* variables and the config file, in that
// order of precedence, and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	a.v = viper.New()
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := bindFlags(cmd.Flags(), a.v); err != nil {
		return connecterr.MarkConfiguration(err, "bind flags")
	}

	cfg, err := loadSettings(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return connecterr.MarkConfiguration(err, "logging")
	}
	a.logger = logger.With(zap.String("run_id", uuid.NewString()), zap.String("command", cmd.Name()))
	return nil
}

func bindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	var result error
	flags.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result
}

// loadSettings overlays explicitly set flags and environment variables on
// the config file, or on the defaults when no file is given
func loadSettings(v *viper.Viper) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, connecterr.MarkConfiguration(err, "load config")
		}
		cfg = loaded
	}

	overlay := map[string]func(){
		"base-url":       func() { cfg.Console.BaseURL = v.GetString("base-url") },
		"session-cookie": func() { cfg.Console.SessionCookie = v.GetString("session-cookie") },
		"http-timeout":   func() { cfg.HTTP.Timeout = config.Duration(v.GetDuration("http-timeout")) },
		"rate-limit":     func() { cfg.HTTP.RateLimit = v.GetFloat64("rate-limit") },
		"chrome":         func() { cfg.Browser.ChromiumPath = v.GetString("chrome") },
		"login-timeout":  func() { cfg.Browser.LoginTimeout = config.Duration(v.GetDuration("login-timeout")) },
		"headless":       func() { cfg.Browser.Headless = v.GetBool("headless") },
		"region":         func() { cfg.AWS.Region = v.GetString("region") },
		"profile":        func() { cfg.AWS.Profile = v.GetString("profile") },
		"log-level":      func() { cfg.Logging.Level = v.GetString("log-level") },
		"log-format":     func() { cfg.Logging.Format = v.GetString("log-format") },
	}
	for key, apply := range overlay {
		if v.IsSet(key) {
			apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, connecterr.MarkConfiguration(err, "config")
	}
	return cfg, nil
}

// connect establishes a session with the instance and returns a console
// client bound to it
func (a *app) connect(ctx context.Context, alias string) (*console.Client, error) {
	httpClient := a.httpClient()
	instanceURL := a.cfg.Console.InstanceURL

	establisher := auth.NewEstablisher(auth.EstablisherConfig{
		InstanceURL:       instanceURL,
		SessionCookie:     a.cfg.Console.SessionCookie,
		LoginTimeout:      a.cfg.Browser.LoginTimeout.Std(),
		FederationTimeout: a.cfg.HTTP.Timeout.Std(),
	}, auth.NewResolver(httpClient, instanceURL, a.logger), a.browserLauncher(), a.federationFactory(), a.logger)

	instance := auth.Instance{Alias: alias, ID: a.v.GetString("instance-id")}
	session, err := establisher.Establish(ctx, alias, a.credentials(instance))
	if err != nil {
		return nil, err
	}

	return console.NewClient(httpClient, console.ClientConfig{
		BaseURL:    instanceURL(alias),
		CookieName: a.cfg.Console.SessionCookie,
		Token:      session.Token,
	}, a.logger), nil
}

func (a *app) httpClient() *utils.HTTPClient {
	return utils.NewHTTPClient(a.cfg.HTTP.Timeout.Std()).WithRateLimit(a.cfg.HTTP.RateLimit)
}

func (a *app) browserLauncher() auth.BrowserLauncher {
	if a.launcher != nil {
		return a.launcher
	}
	return browser.NewLauncher(browser.Config{
		ExecPath: a.cfg.Browser.ChromiumPath,
		Headless: a.cfg.Browser.Headless,
	}, a.logger)
}

func (a *app) federationFactory() auth.FederationClientFactory {
	if a.federation != nil {
		return a.federation
	}
	return auth.NewFederationClientFactory(auth.AWSSessionConfig{
		Region:  a.cfg.AWS.Region,
		Profile: a.cfg.AWS.Profile,
	})
}

// credentials supplies the login inputs once the instance's strategy is
// known. Operators are prompted only for what a form login needs and was
// not given on the command line.
func (a *app) credentials(instance auth.Instance) auth.CredentialsFunc {
	return func(ctx context.Context, strategy auth.Strategy) (auth.LoginMethod, error) {
		if method := instance.LoginFor(strategy); method != nil {
			if instance.ID == "" {
				return nil, connecterr.Configuration("instance %s uses federated login, --instance-id is required", instance.Alias)
			}
			return method, nil
		}

		p := newPrompter(a.stdin, a.stderr)
		username := a.v.GetString("username")
		if username == "" {
			var err error
			if username, err = p.Line("Username: "); err != nil {
				return nil, connecterr.MarkConfiguration(err, "read username")
			}
		}
		password := a.v.GetString("password")
		if password == "" {
			var err error
			if password, err = p.Password("Password: "); err != nil {
				return nil, connecterr.MarkConfiguration(err, "read password")
			}
		}
		return auth.FormLogin{Username: username, Password: password}, nil
	}
}
