package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/brightsmile/clinic-engine/clinic"
)

// DefaultTokenTTL is the session lifetime when the caller does not choose one.
const DefaultTokenTTL = 12 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpiredToken = errors.New("session token expired")
)

// Claims binds a SessionContext into a JWT.
type Claims struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	LocationID string `json:"location_id"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 session token for the user.
func SignToken(secret []byte, session SessionContext, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := Claims{
		Username:   session.Username,
		Role:       session.Role,
		LocationID: string(session.LocationID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyToken parses and validates a session token and returns the session
// it carries.
func VerifyToken(secret []byte, tokenStr string) (SessionContext, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionContext{}, ErrExpiredToken
		}
		return SessionContext{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return SessionContext{}, ErrInvalidToken
	}
	return SessionContext{
		UserID:     claims.Subject,
		Username:   claims.Username,
		Role:       claims.Role,
		LocationID: clinic.LocationID(claims.LocationID),
	}, nil
}
