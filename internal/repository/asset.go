package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bastionhq/sessiongate/internal/database"
	"github.com/bastionhq/sessiongate/internal/models"
	"github.com/google/uuid"
)

// AssetRepository is the Postgres-backed half of the
// lookup_asset_account collaborator (spec §1): it resolves the Asset
// side of an (asset_id, account_id) pair.
type AssetRepository struct {
	db *database.DB
}

func NewAssetRepository(db *database.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

func (r *AssetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	query := `
		SELECT id, hostname, ip, port, protocol, os
		FROM assets
		WHERE id = $1
	`

	var asset models.Asset
	if err := r.db.GetContext(ctx, &asset, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("asset not found")
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return &asset, nil
}
