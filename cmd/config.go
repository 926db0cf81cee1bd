package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/dsrosen/cfrm-console/internal/api"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName   = "config.json"
	sessionFileName  = "session.json"
	identityFileName = "session.key"
	logFileName      = "cfrm.log"
)

var (
	cfgFile string
	conf    Config
)

type Config struct {
	Api     api.Config    `mapstructure:"api" json:"api"`
	Session SessionConfig `mapstructure:"session" json:"session"`
	Log     LogConfig     `mapstructure:"log" json:"log"`
}

type SessionConfig struct {
	File         string `mapstructure:"file" json:"file"`
	Encrypt      bool   `mapstructure:"encrypt" json:"encrypt"`
	IdentityFile string `mapstructure:"identity_file" json:"identity_file"`
}

type LogConfig struct {
	File       string `mapstructure:"file" json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
}

var configCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"cfg"},
	Short:   "Edit the backend settings interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		d := configDraft{
			baseUrl:  conf.Api.BaseUrl,
			timeout:  conf.Api.Timeout.String(),
			strict:   conf.Api.StrictAuth,
			encrypt:  conf.Session.Encrypt,
			testConn: true,
		}

		if err := d.form().Run(); err != nil {
			return err
		}

		timeout, _ := time.ParseDuration(d.timeout)
		viper.Set("api.base_url", strings.TrimSpace(d.baseUrl))
		viper.Set("api.timeout", timeout.String())
		viper.Set("api.strict_auth", d.strict)
		viper.Set("session.encrypt", d.encrypt)

		if err := viper.WriteConfig(); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		if err := viper.Unmarshal(&conf); err != nil {
			return fmt.Errorf("unmarshaling config: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("SAVED", viper.ConfigFileUsed()))
		if !d.testConn {
			return nil
		}

		if err := connect(conf.Api, tokens); err != nil {
			return err
		}
		return connectionTest(cmd)
	},
}

var testConnectionCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return connectionTest(cmd)
	},
}

func connectionTest(cmd *cobra.Command) error {
	var err error
	if spinErr := withSpinner("Contacting "+conf.Api.BaseUrl, func() {
		err = client.ConnectionTest(ctx)
	}); spinErr != nil {
		return spinErr
	}

	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("OK", "backend reachable at "+conf.Api.BaseUrl))
	return nil
}

type configDraft struct {
	baseUrl  string
	timeout  string
	strict   bool
	encrypt  bool
	testConn bool
}

func (d *configDraft) form() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API base URL").
				Placeholder(api.DefaultBaseUrl).
				Validate(validBaseUrl).
				Value(&d.baseUrl),
			huh.NewInput().
				Title("Request timeout").
				Placeholder(api.DefaultTimeout.String()).
				Validate(validTimeout).
				Value(&d.timeout),
			huh.NewConfirm().
				Title("Send the token on every request?").
				Description("Off sends no token to login, refresh, tickets and reference endpoints").
				Value(&d.strict),
			huh.NewConfirm().
				Title("Encrypt the session file?").
				Value(&d.encrypt),
			huh.NewConfirm().
				Title("Run connection test?").
				Value(&d.testConn),
		),
	).WithTheme(customFormTheme())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	dir, err := homeDir()
	cobra.CheckErr(err)

	setCfgDefaults(dir)

	viper.SetEnvPrefix("CFRM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	cobra.CheckErr(viper.BindEnv("api.base_url", "CFRM_API_URL"))

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(dir)
		viper.SetConfigType("json")
		viper.SetConfigName(strings.TrimSuffix(configFileName, filepath.Ext(configFileName)))
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Println(badRedOutput("ERROR", "reading config file: "+err.Error()))
			os.Exit(1)
		}

		path := filepath.Join(dir, configFileName)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			fmt.Println(badRedOutput("ERROR", "creating config directory: "+err.Error()))
			os.Exit(1)
		}
		if err := viper.WriteConfigAs(path); err != nil {
			fmt.Println(badRedOutput("ERROR", "creating default config file: "+err.Error()))
			os.Exit(1)
		}
		viper.SetConfigFile(path)
		slog.Info("created default config file", "path", path)
	}
}

func setCfgDefaults(dir string) {
	viper.SetDefault("api.base_url", api.DefaultBaseUrl)
	viper.SetDefault("api.timeout", api.DefaultTimeout.String())
	viper.SetDefault("api.strict_auth", true)
	viper.SetDefault("session.file", filepath.Join(dir, sessionFileName))
	viper.SetDefault("session.encrypt", false)
	viper.SetDefault("session.identity_file", filepath.Join(dir, identityFileName))
	viper.SetDefault("log.file", filepath.Join(dir, logFileName))
	viper.SetDefault("log.max_size_mb", 5)
	viper.SetDefault("log.max_backups", 5)
}

func (c *Config) validate() error {
	slog.Debug("validating config")
	var bad []string

	if err := validBaseUrl(c.Api.BaseUrl); err != nil {
		bad = append(bad, "api.base_url: "+err.Error())
	}
	if c.Api.Timeout < 0 {
		bad = append(bad, "api.timeout: must not be negative")
	}
	if c.Session.File == "" {
		bad = append(bad, "session.file: required")
	}
	if c.Session.Encrypt && c.Session.IdentityFile == "" {
		bad = append(bad, "session.identity_file: required when session.encrypt is set")
	}

	if len(bad) > 0 {
		slog.Error("invalid config values", "problems", bad)
		return fmt.Errorf("invalid config: %s", strings.Join(bad, "; "))
	}

	return nil
}

func validBaseUrl(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return errors.New("must be an absolute http(s) url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an absolute http(s) url")
	}
	return nil
}

func validTimeout(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return errors.New("use a duration like 10s")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testConnectionCmd)
}
