package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrSecretNotConfigured = errors.New("JWT_SECRET_KEY not configured")

// HostTokenClaims identifies the workflow host calling the API.
type HostTokenClaims struct {
	Host string `json:"host"`
	jwt.RegisteredClaims
}

// GenerateHostToken signs a token for host. A zero ttl yields a token without expiry.
func GenerateHostToken(host string, ttl time.Duration) (string, error) {
	if JWTSecretKey == "" {
		return "", ErrSecretNotConfigured
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "", errors.New("host is required")
	}

	now := time.Now()
	claims := HostTokenClaims{
		Host: host,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   host,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(JWTSecretKey))
}

func ValidateHostToken(tokenString string) (*HostTokenClaims, error) {
	if JWTSecretKey == "" {
		return nil, ErrSecretNotConfigured
	}

	token, err := jwt.ParseWithClaims(tokenString, &HostTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(JWTSecretKey), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*HostTokenClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token claims")
}
