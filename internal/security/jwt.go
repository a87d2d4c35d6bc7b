package security

import (
	"errors"
	"time"

	"exam-arena-service/internal/domain"
	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

// NewTokenAuth builds the HS256 verifier shared by the router and token issuing.
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// GenerateToken signs a bearer token for p. Issuing belongs to the identity provider; this
// exists for local development and tests.
func GenerateToken(auth *jwtauth.JWTAuth, p domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":        p.UserID,
		"email":          p.Email,
		"name":           p.Name,
		"phone_verified": p.PhoneVerified,
		"iat":            now.Unix(),
		"exp":            now.Add(ttl).Unix(),
	}
	_, tokenString, err := auth.Encode(claims)
	return tokenString, err
}

// PrincipalFromClaims maps verified token claims onto a principal.
func PrincipalFromClaims(claims jwt.MapClaims) (domain.Principal, error) {
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return domain.Principal{}, errors.New("user_id claim is missing or not a string")
	}
	p := domain.Principal{UserID: id}
	p.Email, _ = claims["email"].(string)
	p.Name, _ = claims["name"].(string)
	p.PhoneVerified, _ = claims["phone_verified"].(bool)
	return p, nil
}
