// Package collab defines the external-collaborator boundary of the
// gateway (spec §1): authentication, asset/account lookup, audit
// submission, replay upload, blocklist snapshotting and the online
// counter all live behind interfaces here so the session engines never
// depend on a concrete database, object store or identity provider.
// This is the Go-native form of the "global singletons become
// explicit dependencies" restructuring called for in spec §9.
package collab

import (
	"context"
	"io"

	"github.com/bastionhq/sessiongate/internal/models"
	"github.com/google/uuid"
)

// Authenticator resolves an inbound connection request to a Principal.
// authenticate(request) → Principal, spec §1.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Principal, error)
}

// AssetAccountLookup resolves the (Asset, Account) pair a session
// connects with. lookup_asset_account(asset_id, account_id) → (Asset,
// Account), spec §1.
type AssetAccountLookup interface {
	Lookup(ctx context.Context, assetID, accountID uuid.UUID) (*models.Asset, *models.Account, error)
}

// AuditSubmitter accepts audit records produced mid-session (blocklist
// hits, command logs, file operations). submit_audit(record), spec §1.
// Submission is fire-and-forget: spec §5 requires that sessions never
// delay close waiting for audit to land.
type AuditSubmitter interface {
	Submit(ctx context.Context, rec models.AuditRecord)
}

// ReplayUploader uploads a finished local recording file to durable
// storage and returns its remote URL. upload_replay(local_path) →
// remote_url, spec §1.
type ReplayUploader interface {
	Upload(ctx context.Context, localPath string, r io.Reader) (remoteURL string, err error)
}

// BlocklistSource returns the current high-risk command token set.
// blocklist_snapshot() → set<string>, spec §1.
type BlocklistSource interface {
	Snapshot(ctx context.Context) (map[string]struct{}, error)
}

// Counter is the external online-session gauge. counter_incr/decr,
// spec §1.
type Counter interface {
	Incr(name string)
	Decr(name string)
}

const OnlineConnectionCounter = "online_connections"
