package store

import (
	"fmt"

	"github.com/silvercoin/advisor/backend/internal/config"
	"github.com/silvercoin/advisor/backend/internal/model/profile"
	"github.com/silvercoin/advisor/backend/internal/store/sqlite"
)

// Open returns the profile store selected by cfg and a function releasing it.
func Open(cfg config.StoreConfig) (profile.Store, func() error, error) {
	switch cfg.Driver {
	case config.StoreMemory, "":
		return profile.NewMemoryStore(), func() error { return nil }, nil
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
