package commands

import (
	"fmt"

	"github.com/benvon/medvax-chat/internal/config"
	"github.com/benvon/medvax-chat/internal/database"
)

// openStore loads the store settings and connects to the SQL session store.
// The memory driver lives inside the server process, so there is nothing for
// this tool to open.
func openStore() (*config.Config, *database.DB, error) {
	cfg, err := config.LoadStore()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.Open(cfg.StoreDriver, cfg.DatabaseURL, cfg.SQLitePath, false)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if db == nil {
		return nil, nil, fmt.Errorf("STORE_DRIVER=%s has no database; use postgres or sqlite", cfg.StoreDriver)
	}
	return cfg, db, nil
}
