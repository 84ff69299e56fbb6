package main

import (
	"context"
	"os"

	"github.com/cafezinho/discovery/internal/config"
	"github.com/cafezinho/discovery/internal/db"
	"github.com/cafezinho/discovery/internal/logger"
	"github.com/cafezinho/discovery/internal/repository"
	"github.com/cafezinho/discovery/internal/session"
)

// seed stores DEV_USER_ID / DEV_AUTH_TOKEN as the current session.
func main() {
	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	store, err := session.NewStore(repository.NewPreferenceRepository(database), cfg.Session.Secret)
	if err != nil {
		log.Error("failed to init session store", "err", err)
		os.Exit(1)
	}

	sc, err := session.SeedDev(context.Background(), store, cfg)
	if err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("Seeding completed.", "user_id", sc.UserID)
}
