package surreal

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/nommer/internal/common"
)

// Connect opens a SurrealDB connection, signs in, and selects the
// configured namespace/database, the same three-step bootstrap the
// teacher's storage manager uses.
func Connect(ctx context.Context, cfg common.SurrealConfig) (*surrealdb.DB, error) {
	db, err := surrealdb.New(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("connecting to surrealdb: %w", err)
	}
	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": cfg.Username,
		"pass": cfg.Password,
	}); err != nil {
		return nil, fmt.Errorf("signing in to surrealdb: %w", err)
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("selecting namespace/database: %w", err)
	}
	return db, nil
}
