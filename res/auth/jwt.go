package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

func (a *authImpl) ValidateToken(token string, claims jwt.Claims) error {
	t, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(a.jwtPrivateKey), nil
	})
	if err != nil {
		return err
	}
	if !t.Valid {
		return errors.New("invalid token")
	}

	return nil
}

type AccessTokenClaims struct {
	jwt.StandardClaims

	IsAccessToken bool   `json:"is_access_tok"`
	UserID        string `json:"user_id"`
}

func (a *authImpl) GenerateAccessToken(userID string) (string, error) {
	return a.generateAccessToken(userID, time.Now())
}

func (a *authImpl) generateAccessToken(userID string, now time.Time) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)

	token.Claims = AccessTokenClaims{
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(time.Duration(AccessTokenLifespanInHours) * time.Hour).Unix(),
		},
		IsAccessToken: true,
		UserID:        userID,
	}

	str, err := token.SignedString([]byte(a.jwtPrivateKey))
	if err != nil {
		return "", err
	}
	return str, nil
}
