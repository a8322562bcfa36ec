// Package grant verifies short-lived operator grants for privileged
// governance operations such as clearing an audit trail or running an
// emergency safe mutation.
//
// Grants are ed25519-signed JWTs carrying an explicit scope claim. The
// verifying side only ever holds the public key.
package grant

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

// Well-known grant scopes.
const (
	// ScopeAuditClear allows clearing an entity's audit trail.
	ScopeAuditClear = "audit:clear"
	// ScopeEmergencyMutation allows GM-only safe mutations.
	ScopeEmergencyMutation = "mutation:emergency"
)

var (
	// ErrGrantInvalid indicates a grant that failed signature or claim checks.
	ErrGrantInvalid = apperrors.New(apperrors.CodeGrantInvalid, "operator grant is invalid")
	// ErrGrantExpired indicates a grant past its expiry.
	ErrGrantExpired = apperrors.New(apperrors.CodeGrantExpired, "operator grant has expired")
	// ErrGrantMismatch indicates a grant whose scope or entity does not match
	// the attempted operation.
	ErrGrantMismatch = apperrors.New(apperrors.CodeGrantMismatch, "operator grant does not match operation")
)

// configEnv holds raw env values before post-parse validation.
type configEnv struct {
	Issuer    string `env:"WARDEN_OPERATOR_GRANT_ISSUER"`
	Audience  string `env:"WARDEN_OPERATOR_GRANT_AUDIENCE"`
	PublicKey string `env:"WARDEN_OPERATOR_GRANT_PUBLIC_KEY"`
}

// Config defines how operator grants are verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Expectation defines the operation identity a grant must cover.
type Expectation struct {
	// Scope names the privileged operation class.
	Scope string
	// EntityID, when non-empty, restricts the grant to one entity.
	EntityID string
	// OperatorID, when non-empty, must match the grant subject.
	OperatorID string
}

// Claims captures validated operator grant claims.
type Claims struct {
	Issuer    string
	Subject   string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	JWTID     string
	Scope     string
	EntityID  string
}

// grantClaims is the internal claims type used for JWT parsing.
type grantClaims struct {
	jwt.RegisteredClaims
	Scope    string `json:"scope"`
	EntityID string `json:"entity_id,omitempty"`
}

// LoadConfigFromEnv reads operator grant verification configuration.
// Returns a nil config when no public key is configured, which disables
// privileged operations entirely.
func LoadConfigFromEnv() (*Config, error) {
	var raw configEnv
	if err := env.Parse(&raw); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeGrantInvalid, "parse grant env", err)
	}
	if strings.TrimSpace(raw.PublicKey) == "" {
		return nil, nil
	}
	keyBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw.PublicKey))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeGrantInvalid, "decode grant public key", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return nil, apperrors.New(apperrors.CodeGrantInvalid, "grant public key has wrong size")
	}
	return &Config{
		Issuer:   strings.TrimSpace(raw.Issuer),
		Audience: strings.TrimSpace(raw.Audience),
		Key:      ed25519.PublicKey(keyBytes),
	}, nil
}

// Verify parses and validates a grant token against the expected operation.
func (c *Config) Verify(token string, expected Expectation) (Claims, error) {
	if c == nil || len(c.Key) == 0 {
		return Claims{}, ErrGrantInvalid
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}

	parsed := &grantClaims{}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
	}
	if c.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.Issuer))
	}
	if c.Audience != "" {
		options = append(options, jwt.WithAudience(c.Audience))
	}

	_, err := jwt.ParseWithClaims(token, parsed, func(*jwt.Token) (any, error) {
		return c.Key, nil
	}, options...)
	if err != nil {
		if strings.Contains(err.Error(), "expired") {
			return Claims{}, ErrGrantExpired
		}
		return Claims{}, apperrors.Wrap(apperrors.CodeGrantInvalid, "parse grant token", err)
	}

	if parsed.Scope != expected.Scope {
		return Claims{}, ErrGrantMismatch
	}
	if expected.EntityID != "" && parsed.EntityID != "" && parsed.EntityID != expected.EntityID {
		return Claims{}, ErrGrantMismatch
	}
	if expected.OperatorID != "" && parsed.Subject != expected.OperatorID {
		return Claims{}, ErrGrantMismatch
	}

	claims := Claims{
		Issuer:   parsed.Issuer,
		Subject:  parsed.Subject,
		Audience: parsed.Audience,
		Scope:    parsed.Scope,
		EntityID: parsed.EntityID,
		JWTID:    parsed.ID,
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	return claims, nil
}

// Sign issues a grant token. It exists for tests and the grant-key tooling;
// production issuance happens outside this process.
func Sign(key ed25519.PrivateKey, issuer, audience, subject, scope, entityID string, expiresAt time.Time) (string, error) {
	claims := grantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Scope:    scope,
		EntityID: entityID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(key)
}
