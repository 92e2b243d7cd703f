package device

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/database"
)

// DatabaseOpener returns an Opener that opens the SQLite database described
// by cfg, applies pending migrations and wraps it in a Store. The Store owns
// the connection and closes it on Close.
//
// The migrations package must be imported for its files to be registered.
func DatabaseOpener(cfg database.Config) Opener {
	return func(ctx context.Context) (*Store, error) {
		db, err := database.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if _, err := db.Migrate(ctx); err != nil {
			db.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("migrating device database: %w", err)
		}
		store, err := NewStore(ctx, NewSQLiteRepository(db.DB), db)
		if err != nil {
			db.Close() //nolint:errcheck // already failing
			return nil, err
		}
		return store, nil
	}
}
