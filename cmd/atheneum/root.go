package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atheneum-app/atheneum/internal/api"
	"github.com/atheneum-app/atheneum/internal/config"
	"github.com/atheneum-app/atheneum/internal/extraction"
	"github.com/atheneum-app/atheneum/internal/home"
	"github.com/atheneum-app/atheneum/internal/ingest"
	"github.com/atheneum-app/atheneum/internal/metadata"
	"github.com/atheneum-app/atheneum/internal/sources"
	"github.com/atheneum-app/atheneum/internal/store"
	"github.com/atheneum-app/atheneum/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "atheneum",
	Short: "Book ingestion engine for the Atheneum digital library",
	Long: `Atheneum harvests public-domain book catalogs into a single
normalized library database.

The engine includes:
  - Pluggable source adapters (Open Library, Gutendex, Google Books)
  - Persisted per-source configuration with priority scheduling
  - Resumable, budgeted ingestion runs with allow-list filtering
  - Admin-operated bulk extraction jobs with full audit logs`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.atheneum/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "atheneum home directory (default: ~/.atheneum)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(extractionCmd)
}

// services bundles everything a command needs after setup.
type services struct {
	Config       *config.Config
	Home         *home.Dir
	Store        *store.SQLite
	Registry     *sources.Registry
	ConfigStore  *sources.ConfigStore
	Orchestrator *ingest.Orchestrator
	Extraction   *extraction.Manager
}

// Close releases the backing store.
func (s *services) Close() error {
	return s.Store.Close()
}

// setup loads config, opens the database, and wires the full engine. The
// three built-in adapters register here; their config schemas come along
// with them.
func setup() (*services, error) {
	cm, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := cm.Get()

	logger := config.NewLogger(os.Stderr, cfg.Logging)

	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = h.DatabasePath()
	}
	st, err := store.OpenSQLite(dbPath, logger)
	if err != nil {
		return nil, err
	}

	configStore := sources.NewConfigStore(st, logger)
	registry := sources.NewRegistry(configStore, logger)
	for _, fetcher := range []sources.Fetcher{
		sources.NewOpenLibrary(),
		sources.NewGutendex(),
		sources.NewGoogleBooks(),
	} {
		if err := registry.Register(fetcher); err != nil {
			st.Close()
			return nil, fmt.Errorf("register %s: %w", fetcher.SourceID(), err)
		}
	}

	mapper := metadata.NewMapper(logger)
	return &services{
		Config:       cfg,
		Home:         h,
		Store:        st,
		Registry:     registry,
		ConfigStore:  configStore,
		Orchestrator: ingest.NewOrchestrator(registry, mapper, st, logger),
		Extraction:   extraction.NewManager(st, logger),
	}, nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the home directory and a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if h.ConfigExists() {
			fmt.Printf("config already exists at %s\n", h.ConfigPath())
			return nil
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("wrote default config to %s\n", h.ConfigPath())
		return nil
	},
}
