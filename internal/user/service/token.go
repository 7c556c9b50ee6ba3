package service

import (
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"codequest/internal/user/repository"
	appErr "codequest/pkg/errors"
)

const tokenTypeAccess = "access"

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenConfig holds JWT signing settings.
type TokenConfig struct {
	Secret    string
	Issuer    string
	AccessTTL time.Duration
}

func (s *AuthService) generateToken(userID string, role repository.UserRole) (string, error) {
	now := time.Now()
	tokenID, err := randomHex(16)
	if err != nil {
		return "", appErr.Wrap(err, appErr.TokenGenerationFailed)
	}

	claims := tokenClaims{
		Role:      string(role),
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   userID,
			Issuer:    s.tokens.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokens.AccessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.tokens.Secret))
	if err != nil {
		return "", appErr.Wrap(err, appErr.TokenGenerationFailed)
	}
	return signed, nil
}

// ParseToken validates an access token and returns the subject user id
// and role.
func (s *AuthService) ParseToken(tokenString string) (string, repository.UserRole, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, stderrors.New("unexpected signing method: " + token.Method.Alg())
		}
		return []byte(s.tokens.Secret), nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return "", "", appErr.New(appErr.TokenExpired)
		}
		return "", "", appErr.Wrap(err, appErr.TokenInvalid)
	}
	if !token.Valid {
		return "", "", appErr.New(appErr.TokenInvalid)
	}
	if claims.TokenType != tokenTypeAccess {
		return "", "", appErr.New(appErr.TokenInvalid).WithMessage("not an access token")
	}
	if s.tokens.Issuer != "" && claims.Issuer != s.tokens.Issuer {
		return "", "", appErr.New(appErr.TokenInvalid).WithMessage("unexpected issuer")
	}
	if claims.Subject == "" {
		return "", "", appErr.New(appErr.TokenInvalid).WithMessage("missing subject")
	}
	return claims.Subject, repository.UserRole(claims.Role), nil
}

func randomHex(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
