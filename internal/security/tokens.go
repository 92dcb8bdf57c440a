package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or signed by another key.
	ErrInvalidToken = errors.New("invalid token")
)

// tokenTypeAccess is the typ claim carried by access tokens so a token minted for another purpose
// with the same key is never accepted as an access token.
const tokenTypeAccess = "access"

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	Type      string `json:"typ"`
}

// AccessToken is a verified access token.
type AccessToken struct {
	SessionID   string
	PrincipalID string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenProvider issues and validates JWT access tokens signed with RS256, ES256 or EdDSA.
// Refresh tokens are opaque and minted by NewRefreshToken.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	leeway     time.Duration
	nowF       func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key; see SigningMethod.
// issuer and audience are set on claims and validated on ValidateAccess.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		nowF:       time.Now,
	}
}

// WithClock replaces the provider's time source. Used by tests that simulate elapsed time.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	p.nowF = now
	return p
}

// WithLeeway sets the clock-skew tolerance applied when validating exp/iat.
func (p *TokenProvider) WithLeeway(d time.Duration) *TokenProvider {
	p.leeway = d
	return p
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration {
	return p.accessTTL
}

// IssueAccess issues a short-lived access JWT bound to the given session and principal.
// Returns the token string and its expiration time.
func (p *TokenProvider) IssueAccess(sessionID, principalID string, now time.Time) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now = now.UTC().Truncate(time.Second)
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   principalID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
		Type:      tokenTypeAccess,
	}
	token, err = p.sign(claims)
	return token, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	method, err := SigningMethod(p.privateKey.Public())
	if err != nil {
		return "", err
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud, typ).
// Verification needs only the public key; no store lookup is made.
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessToken, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg(), jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.leeway),
		jwt.WithTimeFunc(p.nowF),
	)
	claims := &AccessClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != tokenTypeAccess || claims.SessionID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	out := &AccessToken{
		SessionID:   claims.SessionID,
		PrincipalID: claims.Subject,
		ExpiresAt:   claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
