package grant

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

func newKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv
}

func TestVerifyRoundtrip(t *testing.T) {
	pub, priv := newKeyPair(t)
	cfg := &Config{Issuer: "warden-test", Audience: "warden", Key: pub}

	token, err := Sign(priv, "warden-test", "warden", "op-1", ScopeAuditClear, "char-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := cfg.Verify(token, Expectation{
		Scope:      ScopeAuditClear,
		EntityID:   "char-1",
		OperatorID: "op-1",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "op-1" || claims.Scope != ScopeAuditClear || claims.EntityID != "char-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ExpiresAt.IsZero() {
		t.Fatal("expected expiry carried into claims")
	}
}

func TestVerifyExpired(t *testing.T) {
	pub, priv := newKeyPair(t)
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := &Config{Key: pub, Now: func() time.Time { return issued.Add(2 * time.Hour) }}

	token, err := Sign(priv, "", "", "op-1", ScopeAuditClear, "", issued.Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = cfg.Verify(token, Expectation{Scope: ScopeAuditClear})
	if !errors.Is(err, ErrGrantExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestVerifyMismatches(t *testing.T) {
	pub, priv := newKeyPair(t)
	cfg := &Config{Key: pub}

	token, err := Sign(priv, "", "", "op-1", ScopeAuditClear, "char-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name     string
		expected Expectation
	}{
		{"scope", Expectation{Scope: ScopeEmergencyMutation}},
		{"entity", Expectation{Scope: ScopeAuditClear, EntityID: "char-2"}},
		{"operator", Expectation{Scope: ScopeAuditClear, OperatorID: "op-2"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := cfg.Verify(token, tc.expected); !errors.Is(err, ErrGrantMismatch) {
				t.Fatalf("expected mismatch, got %v", err)
			}
		})
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, priv := newKeyPair(t)
	otherPub, _ := newKeyPair(t)
	cfg := &Config{Key: otherPub}

	token, err := Sign(priv, "", "", "op-1", ScopeAuditClear, "", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = cfg.Verify(token, Expectation{Scope: ScopeAuditClear})
	if !apperrors.IsCode(err, apperrors.CodeGrantInvalid) {
		t.Fatalf("expected invalid grant, got %v", err)
	}
}

func TestVerifyNilConfig(t *testing.T) {
	var cfg *Config
	if _, err := cfg.Verify("token", Expectation{Scope: ScopeAuditClear}); !errors.Is(err, ErrGrantInvalid) {
		t.Fatalf("expected invalid grant, got %v", err)
	}
}

func TestLoadConfigFromEnvUnsetDisables(t *testing.T) {
	t.Setenv("WARDEN_OPERATOR_GRANT_PUBLIC_KEY", "")
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != nil {
		t.Fatal("expected nil config when no key is set")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	pub, _ := newKeyPair(t)
	t.Setenv("WARDEN_OPERATOR_GRANT_PUBLIC_KEY", base64.StdEncoding.EncodeToString(pub))
	t.Setenv("WARDEN_OPERATOR_GRANT_ISSUER", "warden-test")
	t.Setenv("WARDEN_OPERATOR_GRANT_AUDIENCE", "warden")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected a config")
	}
	if cfg.Issuer != "warden-test" || cfg.Audience != "warden" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.Key.Equal(pub) {
		t.Fatal("expected the public key decoded")
	}
}

func TestLoadConfigFromEnvRejectsBadKey(t *testing.T) {
	t.Setenv("WARDEN_OPERATOR_GRANT_PUBLIC_KEY", "not-base64!!!")
	if _, err := LoadConfigFromEnv(); !apperrors.IsCode(err, apperrors.CodeGrantInvalid) {
		t.Fatalf("expected invalid grant error, got %v", err)
	}

	t.Setenv("WARDEN_OPERATOR_GRANT_PUBLIC_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
	if _, err := LoadConfigFromEnv(); !apperrors.IsCode(err, apperrors.CodeGrantInvalid) {
		t.Fatalf("expected wrong size error, got %v", err)
	}
}
