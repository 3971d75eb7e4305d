package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/meincms/apiserver/types"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestTokenService(now time.Time) *TokenService {
	s := NewTokenService(testSecret, time.Hour)
	s.now = func() time.Time { return now }
	return s
}

func TestTokenIssueVerify(t *testing.T) {
	s := newTestTokenService(time.Now())
	want := Identity{ID: 42, Username: "alice", Email: "alice@example.com", Role: types.RoleOperator}

	token, err := s.Issue(want)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	got, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if got != want {
		t.Fatalf("Verify = %+v, want %+v", got, want)
	}
}

func TestTokenExpired(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	token, err := newTestTokenService(issued).Issue(Identity{ID: 1, Role: types.RoleUser})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	_, err = newTestTokenService(time.Now()).Verify(token)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Verify error = %v, want ErrSessionExpired", err)
	}
}

func TestTokenRejected(t *testing.T) {
	now := time.Now()
	s := newTestTokenService(now)
	valid, err := s.Issue(Identity{ID: 7, Username: "bob", Role: types.RoleUser})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	forged, err := NewTokenService([]byte("another-secret-another-secret-xx"), time.Hour).
		Issue(Identity{ID: 7, Username: "bob", Role: types.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	parts := strings.Split(valid, ".")
	escalated := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 7, Role: types.RoleAdmin})
	escalatedParts := strings.Split(mustSign(t, escalated, []byte("x")), ".")
	tampered := parts[0] + "." + escalatedParts[1] + "." + parts[2]

	hs512 := mustSign(t, jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		UserID:           7,
		Role:             types.RoleUser,
	}), testSecret)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		UserID:           7,
		Role:             types.RoleAdmin,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	noRole := mustSign(t, jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		UserID:           7,
	}), testSecret)

	noExpiry := mustSign(t, jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 7, Role: types.RoleUser}), testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", forged},
		{"tampered payload", tampered},
		{"hs512", hs512},
		{"alg none", none},
		{"missing role", noRole},
		{"missing expiry", noExpiry},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Verify(tc.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Verify error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNewTokenServiceDefaultTTL(t *testing.T) {
	if got := NewTokenService(testSecret, 0).TTL(); got != DefaultTokenTTL {
		t.Fatalf("TTL = %s, want %s", got, DefaultTokenTTL)
	}
}

func mustSign(t *testing.T, token *jwt.Token, secret []byte) string {
	t.Helper()
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString error: %v", err)
	}
	return signed
}
