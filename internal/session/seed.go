package session

import (
	"context"
	"errors"

	"github.com/cafezinho/discovery/internal/config"
)

// SeedDev stores the development session from DEV_USER_ID / DEV_AUTH_TOKEN
// and makes it current.
func SeedDev(ctx context.Context, store *Store, cfg *config.Config) (Context, error) {
	sc := Context{UserID: cfg.Dev.UserID, Token: cfg.Dev.AuthToken}
	if !sc.Valid() {
		return Context{}, errors.New("DEV_USER_ID is not set")
	}
	if err := store.Save(ctx, sc); err != nil {
		return Context{}, err
	}
	return sc, nil
}
