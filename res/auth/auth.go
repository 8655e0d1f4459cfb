package auth

import (
	"github.com/golang-jwt/jwt"
)

const (
	AccessTokenLifespanInHours = 24 * 3 // 3 days
)

type Auth interface {
	ValidateToken(token string, claims jwt.Claims) error

	GenerateAccessToken(userID string) (string, error)
}

type authImpl struct {
	jwtPrivateKey string
}

func New(jwtSecret string) *authImpl {
	return &authImpl{
		jwtPrivateKey: jwtSecret,
	}
}
