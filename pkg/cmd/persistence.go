// Package cmd holds the shared wiring helpers for the command binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/persistence/memory"
	"github.com/tessera-id/ariadne/pkg/persistence/postgres"
)

// NewPersistence selects the persistence backend from the database URL
// scheme. "memory://" is for development and tests only: records do not
// survive a restart.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.NewPersistence(ctx, logger, databaseURL)
	case databaseURL == "memory://":
		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database URL %q", databaseURL)
	}
}
