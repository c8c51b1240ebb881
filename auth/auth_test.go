package auth_test

import (
	"testing"
	"time"

	"github.com/annurdien/cok/auth"
)

func TestVerify_DeterministicKey(t *testing.T) {
	svc := auth.New("a-very-long-shared-secret-value!")
	key := svc.Issue("demo", 0)

	if !svc.Verify(key.Signature, "demo") {
		t.Fatal("expected deterministic key to verify")
	}
	if svc.Verify(key.Signature, "other") {
		t.Fatal("key for 'demo' must not verify against a different subdomain")
	}
	if svc.Verify("not-a-real-signature", "demo") {
		t.Fatal("garbage signature must not verify")
	}
}

func TestVerify_EphemeralKeyExpires(t *testing.T) {
	svc := auth.New("another-shared-secret-value-here")

	// Issue an ephemeral key that is already expired by using a negative TTL
	// via direct construction would bypass the API; instead issue with a
	// tiny TTL and wait it out.
	key := svc.Issue("temp", 10*time.Millisecond)
	if !svc.Verify(key.Signature, "temp") {
		t.Fatal("expected freshly issued ephemeral key to verify")
	}

	time.Sleep(20 * time.Millisecond)
	if svc.Verify(key.Signature, "temp") {
		t.Fatal("expected expired ephemeral key to be rejected")
	}
}

func TestRevoke(t *testing.T) {
	svc := auth.New("yet-another-shared-secret-value!")
	key := svc.Issue("bye", time.Hour)
	svc.Revoke(key.Signature)
	if svc.Verify(key.Signature, "bye") {
		t.Fatal("expected revoked ephemeral key to be rejected")
	}
}
