package auth

import (
	"testing"
	"time"

	"github.com/paypertask/taskhub/internal/domain/user"
)

func newTestManager() *Manager {
	return NewManager("test-secret", 15*time.Minute, 24*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateAccessToken("u1", "buyer@x.com", user.RoleBuyer)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := m.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if claims.UserID != "u1" || claims.Email != "buyer@x.com" || claims.Role != user.RoleBuyer {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestAccessTokenRejectsRefreshToken(t *testing.T) {
	m := newTestManager()

	raw, _, _, err := m.GenerateRefreshToken("u1", "w@x.com", user.RoleWorker)
	if err != nil {
		t.Fatalf("generate refresh: %v", err)
	}

	if _, err := m.VerifyAccessToken(raw); err == nil {
		t.Fatal("a refresh token must not pass access verification")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m := newTestManager()
	other := NewManager("different-secret", 15*time.Minute, 24*time.Hour)

	token, err := m.GenerateAccessToken("u1", "buyer@x.com", user.RoleBuyer)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := other.VerifyAccessToken(token); err == nil {
		t.Fatal("token signed with another secret must not verify")
	}
}

func TestHashRefreshTokenIsStable(t *testing.T) {
	m := newTestManager()

	a := m.HashRefreshToken("raw-token")
	b := m.HashRefreshToken("raw-token")
	c := m.HashRefreshToken("other-token")

	if a != b {
		t.Fatal("same input must hash identically")
	}
	if a == c {
		t.Fatal("distinct inputs must not collide trivially")
	}
}
