package repository

import (
	"context"
	"fmt"

	"github.com/bastionhq/sessiongate/internal/database"
)

// BlocklistRepository is the Postgres-backed blocklist_snapshot
// collaborator (spec §1). TerminalSession calls Snapshot for every
// client input it checks, so each check sees the current table; the
// set is not cached for the lifetime of a session.
type BlocklistRepository struct {
	db *database.DB
}

func NewBlocklistRepository(db *database.DB) *BlocklistRepository {
	return &BlocklistRepository{db: db}
}

// Snapshot returns the current set of high-risk command tokens.
func (r *BlocklistRepository) Snapshot(ctx context.Context) (map[string]struct{}, error) {
	query := `SELECT token FROM blocklist_tokens`

	var tokens []string
	if err := r.db.SelectContext(ctx, &tokens, query); err != nil {
		return nil, fmt.Errorf("failed to snapshot blocklist: %w", err)
	}

	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set, nil
}
