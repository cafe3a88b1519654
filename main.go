package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lucifer7355/pii-anonymizer/config"
	"github.com/Lucifer7355/pii-anonymizer/logging"
)

// errAlreadyReported marks failures whose message has already been written
// to the output.
var errAlreadyReported = errors.New("already reported")

type app struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "anonymizer",
		Short: "Redact personal information from free text",
		Long: `anonymizer redacts names, dates, emails, phone numbers, identifiers and
addresses from free text. "serve" runs the HTTP service and browser form;
"anonymize" sends one request to a running service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newServeCmd(a), newAnonymizeCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	bootstrap := logging.NewLogger(a.logLevel, "text")
	config.LoadEnv(bootstrap)

	cfg, err := config.Load(viper.New(), a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	format := cfg.Logging.Format
	if cmd.Name() == "anonymize" {
		format = "text"
	}
	a.cfg = cfg
	a.logger = logging.NewLogger(cfg.Logging.Level, format)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errAlreadyReported) {
			fmt.Fprintln(os.Stderr, "Error: "+strings.TrimSpace(err.Error()))
		}
		os.Exit(1)
	}
}
