package guard

import (
	"context"
	"encoding/json"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/audit"
	auditdomain "github.com/Jaldeepsinh-Gohil/MeetMate/internal/audit/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/credential"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/issuer"
)

// Backend is what a Guard talks to: the in-process issuer or a remote auth API.
//
// Login returns credential errors unchanged. Refresh returns issuer verdicts
// (or ErrSessionEnded) for terminal failures and anything else for transient ones.
type Backend interface {
	Login(ctx context.Context, c credential.Credential) (*domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Logout(ctx context.Context, pair *domain.TokenPair) error
}

// LocalBackend runs verification and issuance in process.
type LocalBackend struct {
	Verifier credential.Verifier
	Issuer   *issuer.Issuer
	Audit    audit.AuditLogger // optional
}

func (b *LocalBackend) Login(ctx context.Context, c credential.Credential) (*domain.TokenPair, error) {
	principalID, err := b.Verifier.Verify(ctx, c)
	if err != nil {
		if b.Audit != nil {
			md, _ := json.Marshal(map[string]string{"identifier": c.Identifier, "reason": err.Error()})
			b.Audit.LogEvent(ctx, "", "", auditdomain.ActionLoginFailure, string(md))
		}
		return nil, err
	}
	pair, _, err := b.Issuer.Issue(ctx, principalID)
	return pair, err
}

func (b *LocalBackend) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	return b.Issuer.Rotate(ctx, refreshToken)
}

func (b *LocalBackend) Logout(ctx context.Context, pair *domain.TokenPair) error {
	return b.Issuer.Revoke(ctx, pair.SessionID)
}
