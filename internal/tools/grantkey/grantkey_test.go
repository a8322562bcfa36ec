package grantkey

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"testing"
)

func TestRunWritesKeyPair(t *testing.T) {
	var out bytes.Buffer
	seed := strings.NewReader(strings.Repeat("deterministic seed material ", 4))

	if err := Run(&out, seed); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 export lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "export WARDEN_OPERATOR_GRANT_PRIVATE_KEY=") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "export WARDEN_OPERATOR_GRANT_PUBLIC_KEY=") {
		t.Fatalf("unexpected second line %q", lines[1])
	}

	privRaw := strings.TrimPrefix(lines[0], "export WARDEN_OPERATOR_GRANT_PRIVATE_KEY=")
	pubRaw := strings.TrimPrefix(lines[1], "export WARDEN_OPERATOR_GRANT_PUBLIC_KEY=")
	priv, err := base64.StdEncoding.DecodeString(privRaw)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	pub, err := base64.StdEncoding.DecodeString(pubRaw)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(priv) != ed25519.PrivateKeySize || len(pub) != ed25519.PublicKeySize {
		t.Fatalf("unexpected key sizes %d/%d", len(priv), len(pub))
	}

	// The exported keys must form a working pair.
	message := []byte("warden grant check")
	sig := ed25519.Sign(ed25519.PrivateKey(priv), message)
	if !ed25519.Verify(ed25519.PublicKey(pub), message, sig) {
		t.Fatal("expected the exported keys to verify each other")
	}
}

func TestRunRequiresOutput(t *testing.T) {
	if err := Run(nil, nil); err == nil {
		t.Fatal("expected an error without an output writer")
	}
}
