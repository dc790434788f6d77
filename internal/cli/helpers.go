package cli

import (
	"fmt"
	"strings"

	"github.com/driftworks/conductor/internal/config"
	"github.com/driftworks/conductor/internal/db"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to conductor.yaml (default: ./conductor.yaml, then ~/.conductor/config.yaml)")
}

// loadConfig loads the configuration from --config or the default lookup
// chain and validates it.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return cfg, nil
}

// openDatabase opens and migrates the run-history database at the
// configured path, falling back to ~/.conductor/conductor.db.
func openDatabase(cfg *config.Config) (*db.DB, error) {
	path := cfg.Project.DBPath
	if path == "" {
		var err error
		path, err = db.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
