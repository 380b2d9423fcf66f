// Command cutover migrates user file blobs and metadata from the legacy
// store (local filesystem + PostgreSQL + graph database) to the new
// object-store API and embedded lineage database, batch by batch.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/list-cutter/cutover/client"
	"github.com/list-cutter/cutover/internal/config"
	"github.com/list-cutter/cutover/internal/db"
	"github.com/list-cutter/cutover/internal/db/migrations"
	"github.com/list-cutter/cutover/internal/dbpool"
	"github.com/list-cutter/cutover/internal/migrate"
	"github.com/list-cutter/cutover/internal/store"
)

// Build-time variables set via ldflags.
var (
	version   = "1.0.0"
	commit    = ""
	buildDate = ""
)

var (
	flagDatabaseURL string
	flagAPIURL      string
	flagAPIToken    string
	flagFmt         string
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("cutover version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("cutover version %s-dev", version)
}

type configFile struct {
	DatabaseURL string `yaml:"database_url"`
	APIURL      string `yaml:"api_url"`
	APIToken    string `yaml:"api_token"`
	LineagePath string `yaml:"lineage_path"`
	GraphURI    string `yaml:"graph_uri"`
	GraphUser   string `yaml:"graph_user"`
	GraphPass   string `yaml:"graph_password"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "cutover",
		Short:        "Migrate list_cutter files to the new object store",
		Version:      versionString(),
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "PostgreSQL URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Destination API base URL (env: CUTOVER_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagAPIToken, "api-token", "", "Destination API bearer token (env: CUTOVER_API_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet")

	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newRollbackCmd())
	rootCmd.AddCommand(newBatchesCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newLineageCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfig layers configuration: flags take precedence, then
// environment, then ~/.cutover/config.yaml, then defaults.
func resolveConfig() (config.Config, error) {
	cfg, err := config.LoadEnv()
	if err != nil {
		return cfg, err
	}

	if file, ferr := readConfigFile(); ferr == nil {
		if cfg.DatabaseURL.Value() == "" && file.DatabaseURL != "" {
			cfg.DatabaseURL = config.Secret(file.DatabaseURL)
		}
		if file.APIURL != "" && cfg.APIURL == config.Default().APIURL {
			cfg.APIURL = file.APIURL
		}
		if cfg.APIToken.Value() == "" && file.APIToken != "" {
			cfg.APIToken = config.Secret(file.APIToken)
		}
		if file.LineagePath != "" && cfg.LineagePath == config.Default().LineagePath {
			cfg.LineagePath = file.LineagePath
		}
		if cfg.GraphURI == "" {
			cfg.GraphURI = file.GraphURI
		}
		if file.GraphUser != "" {
			cfg.GraphUser = file.GraphUser
		}
		if cfg.GraphPass.Value() == "" {
			cfg.GraphPass = config.Secret(file.GraphPass)
		}
	}

	if flagDatabaseURL != "" {
		cfg.DatabaseURL = config.Secret(flagDatabaseURL)
	}
	if flagAPIURL != "" {
		cfg.APIURL = flagAPIURL
	}
	if flagAPIToken != "" {
		cfg.APIToken = config.Secret(flagAPIToken)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func readConfigFile() (configFile, error) {
	var file configFile

	home, err := os.UserHomeDir()
	if err != nil {
		return file, err
	}

	data, err := os.ReadFile(filepath.Join(home, ".cutover", "config.yaml"))
	if err != nil {
		return file, err
	}

	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, err
	}

	return file, nil
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}

// pipeline bundles everything a migration command needs.
type pipeline struct {
	cfg    config.Config
	log    *logrus.Logger
	pool   *dbpool.Pool
	stores *store.Stores
	api    *client.Client
	orch   *migrate.Orchestrator
}

// openPipeline resolves config, connects to the database, ensures the
// schema, and wires the orchestrator. Call close when done.
func openPipeline(ctx context.Context) (*pipeline, func(), error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, nil, err
	}

	log := newLogger(cfg)

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.EnsureSchema(ctx, pool, log, migrations.FS); err != nil {
		pool.Close()

		return nil, nil, err
	}

	stores := store.NewStores(store.Base{Pool: pool, Log: log})

	api := client.New(cfg.APIURL,
		client.WithToken(cfg.APIToken.Value()),
		client.WithTransferTimeout(cfg.APITimeout),
		client.WithProbeTimeout(cfg.ProbeTimeout),
		client.WithMaxFileSize(cfg.MaxFileSize),
	)

	p := &pipeline{
		cfg:    cfg,
		log:    log,
		pool:   pool,
		stores: stores,
		api:    api,
		orch:   migrate.New(cfg, stores, api, log),
	}

	return p, pool.Close, nil
}

// rebuildOrchestrator recreates the orchestrator after a config tweak
// (e.g. the --workers flag).
func rebuildOrchestrator(p *pipeline) *migrate.Orchestrator {
	return migrate.New(p.cfg, p.stores, p.api, p.log)
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}
