package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dsrosen/cfrm-console/internal/api"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dsrosen/cfrm-console/internal/session"
	"github.com/dsrosen/cfrm-console/internal/tokenstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appDirName = ".cfrm"

	authAnnotation = "auth"
	authNone       = "none"
)

var (
	ctx     context.Context
	client  *cfrm.Client
	sess    *session.Store
	tokens  tokenstore.Store
	debug   bool
	output  string
	appHome string
)

var errLoginRequired = fmt.Errorf("%w: run `cfrm login` first", api.ErrUnauthorized)

var rootCmd = &cobra.Command{
	Use:               "cfrm",
	Short:             "Terminal console for the CFRM ticketing backend",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: preRun,
	RunE: func(cmd *cobra.Command, args []string) error {
		return consoleCmd.RunE(cmd, args)
	},
}

func Execute() {
	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(c); err != nil {
		fmt.Fprintln(os.Stderr, errorOutput(err))
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cfrm/config.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")

	cobra.OnInitialize(initConfig)
}

func preRun(cmd *cobra.Command, args []string) error {
	ctx = cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := validateOutput(output); err != nil {
		return err
	}

	if err := viper.Unmarshal(&conf); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := setLogger(conf.Log, debug); err != nil {
		return fmt.Errorf("setting logger: %w", err)
	}

	if err := conf.validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	store, err := openTokenStore(conf.Session)
	if err != nil {
		return fmt.Errorf("opening session file: %w", err)
	}

	return connect(conf.Api, store)
}

// connect wires the HTTP wrapper, domain services and session store around
// the given token storage.
func connect(cfg api.Config, store tokenstore.Store) error {
	a, err := api.NewClient(cfg, store)
	if err != nil {
		return fmt.Errorf("creating api client: %w", err)
	}

	tokens = store
	client = cfrm.NewClient(a)
	sess = session.New(client, store)
	a.OnUnauthorized(sess.HandleUnauthorized)
	return nil
}

func openTokenStore(cfg SessionConfig) (tokenstore.Store, error) {
	if !cfg.Encrypt {
		return tokenstore.OpenFile(cfg.File, nil)
	}

	id, err := tokenstore.LoadOrCreateIdentity(cfg.IdentityFile)
	if err != nil {
		return nil, err
	}
	return tokenstore.OpenFile(cfg.File, id)
}

// authedPreRun is the pre-run of command groups whose endpoints need a
// session. Commands annotated with authNone skip the token check.
func authedPreRun(cmd *cobra.Command, args []string) error {
	if err := preRun(cmd, args); err != nil {
		return err
	}
	if cmd.Annotations[authAnnotation] == authNone {
		return nil
	}
	return requireLogin()
}

// requireLogin fails fast when no access token is stored, before any request
// is made.
func requireLogin() error {
	if _, ok := tokens.Get(tokenstore.TokenKey); !ok {
		return errLoginRequired
	}
	return nil
}

func errorOutput(err error) string {
	switch {
	case errors.Is(err, errLoginRequired):
		return badRedOutput("ERROR", err.Error())
	case errors.Is(err, api.ErrUnauthorized):
		return badRedOutput("ERROR", "session expired: run `cfrm login` again")
	}
	return badRedOutput("ERROR", api.ErrorMessage(err, err.Error()))
}

func homeDir() (string, error) {
	if appHome != "" {
		return appHome, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	appHome = filepath.Join(home, appDirName)
	return appHome, nil
}
