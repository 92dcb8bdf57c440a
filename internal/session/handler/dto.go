package handler

import (
	"time"

	principaldomain "github.com/Jaldeepsinh-Gohil/MeetMate/internal/principal/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
)

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"displayName" validate:"max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required,max=256"`
}

type PrincipalResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

func principalResponse(p *principaldomain.Principal) PrincipalResponse {
	return PrincipalResponse{ID: p.ID, Email: p.Email, DisplayName: p.DisplayName, CreatedAt: p.CreatedAt}
}

type SessionResponse struct {
	ID                 string     `json:"id"`
	FamilyID           string     `json:"familyId"`
	Current            bool       `json:"current"`
	CreatedAt          time.Time  `json:"createdAt"`
	RefreshTokenExpiry time.Time  `json:"refreshTokenExpiresAt"`
	LastRefreshedAt    *time.Time `json:"lastRefreshedAt,omitempty"`
}

func sessionResponse(s *domain.Session, currentID string) SessionResponse {
	return SessionResponse{
		ID:                 s.ID,
		FamilyID:           s.FamilyID,
		Current:            s.ID == currentID,
		CreatedAt:          s.CreatedAt,
		RefreshTokenExpiry: s.RefreshTokenExpiry,
		LastRefreshedAt:    s.LastRefreshedAt,
	}
}

type RevokedResponse struct {
	Revoked int `json:"revoked"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
