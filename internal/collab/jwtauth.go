package collab

import (
	"context"
	"fmt"

	"github.com/bastionhq/sessiongate/internal/auth"
	"github.com/bastionhq/sessiongate/internal/models"
)

// JWTAuthenticator implements Authenticator on top of the gateway's
// own JWT issuer (internal/auth), mirroring the teacher's bearer-token
// validation but stripped of its EntraID/session-cookie machinery,
// which the spec places out of scope.
type JWTAuthenticator struct {
	tokenManager *auth.TokenManager
}

func NewJWTAuthenticator(tm *auth.TokenManager) *JWTAuthenticator {
	return &JWTAuthenticator{tokenManager: tm}
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (models.Principal, error) {
	claims, err := a.tokenManager.ValidateToken(token)
	if err != nil {
		return models.Principal{}, fmt.Errorf("authenticate: %w", err)
	}
	return models.Principal{UserID: claims.UserID, Username: claims.Username}, nil
}
