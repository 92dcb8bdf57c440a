package domain

import "time"

// TokenPair is what a successful login or rotation hands to the client.
// RefreshToken is the raw opaque token; it is never persisted server-side.
type TokenPair struct {
	SessionID          string    `json:"sessionId"`
	PrincipalID        string    `json:"principalId"`
	AccessToken        string    `json:"accessToken"`
	AccessTokenExpiry  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken       string    `json:"refreshToken"`
	RefreshTokenExpiry time.Time `json:"refreshTokenExpiresAt"`
}
