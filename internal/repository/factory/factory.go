package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/config"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository/mongo"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository/postgres"
)

// New selects the store and repository backend from settings. The returned
// store is unconnected; composition owns Connect/Close.
func New(cfg *config.Config, logger *zap.Logger) (repository.Store, repository.MetadataRepository, error) {
	switch cfg.Backends.Repository {
	case "mongo":
		conn := mongo.NewConnection(cfg.Database, cfg.Retry.Policy(), logger)
		return conn, mongo.NewRepository(conn), nil
	case "postgres":
		store := postgres.NewStore(cfg.Database.URL, cfg.Retry.Policy(), logger)
		return store, postgres.NewRepository(store), nil
	default:
		return nil, nil, fmt.Errorf("unknown repository backend: %q", cfg.Backends.Repository)
	}
}
