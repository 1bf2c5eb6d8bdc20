package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/bastionhq/sessiongate/internal/models"
	"github.com/bastionhq/sessiongate/internal/repository"
	"github.com/bastionhq/sessiongate/internal/vault"
	"github.com/google/uuid"
)

// PostgresLookup implements AssetAccountLookup against the asset/account
// repositories, resolving an Account's secret through Vault when its
// vault_secret_path is set instead of a raw password.
type PostgresLookup struct {
	assets   *repository.AssetRepository
	accounts *repository.AccountRepository
	vault    *vault.Client
}

func NewPostgresLookup(assets *repository.AssetRepository, accounts *repository.AccountRepository, vc *vault.Client) *PostgresLookup {
	return &PostgresLookup{assets: assets, accounts: accounts, vault: vc}
}

func (l *PostgresLookup) Lookup(ctx context.Context, assetID, accountID uuid.UUID) (*models.Asset, *models.Account, error) {
	asset, err := l.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup asset: %w", err)
	}

	account, err := l.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup account: %w", err)
	}

	if !account.IsActive {
		return asset, account, fmt.Errorf("account is inactive")
	}

	if account.Password == "" && account.VaultSecretPath != "" {
		secret, err := l.resolveSecret(ctx, account.VaultSecretPath)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve account secret: %w", err)
		}
		account.Password = secret.Password
	}

	return asset, account, nil
}

func (l *PostgresLookup) resolveSecret(ctx context.Context, path string) (*vault.AccountSecret, error) {
	if strings.HasPrefix(path, "raw:") {
		return &vault.AccountSecret{Password: strings.TrimPrefix(path, "raw:")}, nil
	}
	return l.vault.GetAccountSecret(ctx, path)
}
