package security

import (
	"context"
	"testing"
	"time"

	"exam-arena-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	auth := NewTokenAuth("test-secret")
	want := domain.Principal{UserID: "u1", Email: "u1@example.com", Name: "Asha", PhoneVerified: true}

	token, err := GenerateToken(auth, want, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	decoded, err := auth.Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := decoded.AsMap(context.Background())
	if err != nil {
		t.Fatalf("claims: %v", err)
	}
	got, err := PrincipalFromClaims(claims)
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestPrincipalFromClaimsRequiresUserID(t *testing.T) {
	if _, err := PrincipalFromClaims(jwt.MapClaims{"email": "x@example.com"}); err == nil {
		t.Fatalf("expected error for missing user_id")
	}
}
