package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bastionhq/sessiongate/internal/database"
	"github.com/bastionhq/sessiongate/internal/models"
	"github.com/google/uuid"
)

// AccountRepository is the Postgres-backed half of the
// lookup_asset_account collaborator (spec §1): it resolves the
// Account side of an (asset_id, account_id) pair.
type AccountRepository struct {
	db *database.DB
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := `
		SELECT id, asset_id, username, password, vault_secret_path, is_active
		FROM accounts
		WHERE id = $1
	`

	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account not found")
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// GetByAssetID retrieves every account configured on an asset, ordered
// by username. The WebSocket handlers do not fall back to it: they
// reject a request that omits account_id.
func (r *AccountRepository) GetByAssetID(ctx context.Context, assetID uuid.UUID) ([]*models.Account, error) {
	query := `
		SELECT id, asset_id, username, password, vault_secret_path, is_active
		FROM accounts
		WHERE asset_id = $1
		ORDER BY username ASC
	`

	var accounts []*models.Account
	if err := r.db.SelectContext(ctx, &accounts, query, assetID); err != nil {
		return nil, fmt.Errorf("failed to list accounts by asset: %w", err)
	}

	return accounts, nil
}
