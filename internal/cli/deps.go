package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/truthlayer/truth-mcp/internal/config"
	"github.com/truthlayer/truth-mcp/internal/integrity"
	"github.com/truthlayer/truth-mcp/internal/logger"
	"github.com/truthlayer/truth-mcp/internal/reducer"
	"github.com/truthlayer/truth-mcp/internal/schema"
	"github.com/truthlayer/truth-mcp/internal/storage"
)

// deps wires the core components for one command invocation.
type deps struct {
	cfg      config.Config
	log      *logger.Logger
	store    *storage.Store
	registry *schema.Registry
	checker  *integrity.Checker
	engine   *reducer.Engine
}

// loadDeps reads config (with flag overrides already applied via
// loadConfig) and opens the truth database.
func loadDeps(cfg config.Config) (*deps, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	registry := schema.NewRegistry(store)
	checker := integrity.NewChecker(integrity.OrphanPolicy(cfg.OrphanEntityPolicy))
	engine := reducer.New(store, registry, checker, log, reducer.Options{
		StrictTypes: cfg.StrictTypeEnforcement,
	})

	return &deps{
		cfg:      cfg,
		log:      log,
		store:    store,
		registry: registry,
		checker:  checker,
		engine:   engine,
	}, nil
}

func (d *deps) close() {
	d.store.Close()
	d.log.Sync()
}

// addConfigFlags registers the flags shared by every command.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to YAML config file")
	cmd.Flags().String("data-dir", "", "Directory for the sqlite truth database (overrides config)")
}

// loadConfig resolves the effective config from file plus flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}
