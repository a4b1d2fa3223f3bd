// Package db selects and opens the durable store driver.
package db

import (
	"context"
	"log/slog"

	"github.com/crewmind/crewmind/internal/profile"
	"github.com/crewmind/crewmind/store"
	"github.com/crewmind/crewmind/store/db/memory"
	"github.com/crewmind/crewmind/store/db/postgres"
	"github.com/crewmind/crewmind/store/db/sqlite"
)

// NewDBDriver opens the driver the profile names. When the configured
// backend cannot be reached at startup the process degrades to the
// in-memory driver rather than refusing to boot; the degradation is
// loud in the logs because history will not survive a restart.
func NewDBDriver(ctx context.Context, instanceProfile *profile.Profile) (store.Driver, error) {
	var (
		driver store.Driver
		err    error
	)
	switch instanceProfile.DurableDriver {
	case "postgres":
		driver, err = postgres.NewDB(ctx, instanceProfile)
	case "sqlite":
		driver, err = sqlite.NewDB(ctx, instanceProfile)
	case "", "memory":
		return memory.NewDB(), nil
	default:
		slog.Warn("db: unknown driver, using in-memory store", "driver", instanceProfile.DurableDriver)
		return memory.NewDB(), nil
	}
	if err != nil {
		slog.Error("db: durable store unavailable, degrading to in-memory store; history will not persist",
			"driver", instanceProfile.DurableDriver, "error", err)
		return memory.NewDB(), nil
	}
	return driver, nil
}
