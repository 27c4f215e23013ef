package usecase

import (
	authdomain "dealsync-backend/internal/auth/domain"
	authdto "dealsync-backend/internal/auth/dto"
)

// AuthUsecase defines the authentication operation surface.
type AuthUsecase interface {
	Login(req *authdto.LoginRequest) (*authdto.TokenResponse, error)
	Register(req *authdto.RegisterRequest) (*authdto.TokenResponse, error)
	ValidateToken(tokenString string) (*authdomain.User, error)
	// SetImapCredentials validates nothing upstream; the IMAP provider
	// verifies on first session. The password is encrypted at rest.
	SetImapCredentials(userID string, req *authdto.ImapCredentialsRequest) error
	SetSelfIdentifiers(userID string, identifiers []string) error
}
