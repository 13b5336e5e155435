package middleware

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the JWT payload.
type Claims struct {
	Player string `json:"player"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// PlayerUUID parses the player claim.
func (c *Claims) PlayerUUID() (uuid.UUID, error) {
	return uuid.Parse(c.Player)
}

// GenerateToken signs a JWT for the given player with the given secret and TTL.
func GenerateToken(player uuid.UUID, name, secret string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Player: player.String(),
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a JWT string and returns the claims.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if _, err := claims.PlayerUUID(); err != nil {
		return nil, errors.New("invalid player claim")
	}
	return claims, nil
}
