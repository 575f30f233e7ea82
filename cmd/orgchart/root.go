package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orgchart/internal/config"
	"orgchart/internal/logging"
	"orgchart/internal/repository"
	"orgchart/internal/repository/sqlite"
)

var version = "0.3.0"

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	dbPath     string
	account    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:          "orgchart",
		Short:        "orgchart serves and edits organization charts",
		Long:         Brand.Sprint("orgchart") + " builds an org chart graph from relational rows and serves remote editing sessions",
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate("orgchart {{ .Version }}\n")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default: search $ORGCHART_CONFIG, ./orgchart.yaml, ~/.config/orgchart)")
	pf.StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides config)")
	pf.StringVarP(&flags.account, "account", "a", "", "account to operate on (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	cmd.AddCommand(
		serveCmd(flags),
		importCmd(flags),
		exportCmd(flags),
		inspectCmd(flags),
	)
	return cmd
}

// load reads the config and applies flag overrides
func (f *globalFlags) load() (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if f.configPath != "" {
		cfg, path, err = config.LoadFromPath(f.configPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, "", err
	}

	if f.dbPath != "" {
		cfg.Database.Path = f.dbPath
	}
	if f.account != "" {
		cfg.Graph.Account = f.account
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func openRepository(cfg *config.Config, logger *zap.Logger) (*sqlite.Repository, error) {
	repo, err := sqlite.New(cfg.Database.Path, sqlite.Options{Shape: repository.Shape(cfg.Graph.Shape)}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repo, nil
}
