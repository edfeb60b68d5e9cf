// Package cli implements the svcpipe command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ambiyansyah-risyal/svcpipe"
	"github.com/ambiyansyah-risyal/svcpipe/auth"
	"github.com/ambiyansyah-risyal/svcpipe/config"
	"github.com/ambiyansyah-risyal/svcpipe/logging"
)

type app struct {
	flagConfig    string
	flagBaseURL   string
	flagService   string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
}

// NewRootCmd creates the root cobra command for the svcpipe CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "svcpipe",
		Short: "Send requests through the svcpipe pipeline",
		Long: "svcpipe executes API requests with authentication, retries, " +
			"response caching and structured error reporting.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flagConfig, "config", "", "Config file (or SVCPIPE_CONFIG env, default ~/.svcpipe/config.yaml)")
	pf.StringVar(&a.flagBaseURL, "base-url", "", "API base URL (overrides config)")
	pf.StringVar(&a.flagService, "service", "", "Service name used in logs and errors")
	pf.BoolVar(&a.flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&a.flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&a.flagLogFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		newRequestCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newVersionCmd(),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Resolve(a.flagConfig)
	if err != nil {
		return err
	}
	if a.flagBaseURL != "" {
		cfg.BaseURL = a.flagBaseURL
	}
	if a.flagService != "" {
		cfg.Service = a.flagService
	}
	if a.flagLogLevel != "" {
		cfg.LogLevel = a.flagLogLevel
	}
	if a.flagLogFormat != "" {
		cfg.LogFormat = a.flagLogFormat
	}
	if a.flagDebug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
	return nil
}

func (a *app) tokenStore() (*auth.Store, error) {
	return a.cfg.TokenStore(
		auth.WithLogoutHook(func() {
			a.logger.Warn("credentials cleared, run 'svcpipe login' to authenticate again")
		}),
		auth.WithSaveErrorHook(func(err error) {
			a.logger.Warn("refreshed credentials not saved", "error", err.Error())
		}),
	)
}

// newService builds the pipeline from the resolved config.
func (a *app) newService() (*svcpipe.Service, error) {
	store, err := a.tokenStore()
	if err != nil {
		return nil, err
	}
	opts := append(a.cfg.Options(),
		svcpipe.WithLogger(a.logger),
		svcpipe.WithTokenStore(store),
	)
	svc := svcpipe.New(opts...)
	if !svc.IsValid() {
		return nil, fmt.Errorf("invalid configuration: %w", svc.ValidationError())
	}
	return svc, nil
}
