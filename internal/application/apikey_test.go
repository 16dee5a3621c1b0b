package application

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var fastArgon2idParams = Argon2idParams{
	Memory:      8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func TestHashAndVerifyAPIKey(t *testing.T) {
	t.Parallel()

	hash, err := HashAPIKey("s3cret-key", fastArgon2idParams)
	if err != nil {
		t.Fatalf("HashAPIKey returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected hash format %q", hash)
	}

	if err := VerifyAPIKey(hash, "s3cret-key"); err != nil {
		t.Fatalf("expected key to verify, got %v", err)
	}
	if err := VerifyAPIKey(hash, "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := VerifyAPIKey("$bcrypt$nope", "s3cret-key"); !errors.Is(err, ErrInvalidKeyHash) {
		t.Fatalf("expected ErrInvalidKeyHash, got %v", err)
	}
	if err := VerifyAPIKey(strings.Replace(hash, "v=19", "v=16", 1), "s3cret-key"); !errors.Is(err, ErrIncompatibleKeyVersion) {
		t.Fatalf("expected ErrIncompatibleKeyVersion, got %v", err)
	}
	if _, err := HashAPIKey("", fastArgon2idParams); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}

func TestAPIKeyVerifier(t *testing.T) {
	t.Parallel()

	hash, err := HashAPIKey("s3cret-key", fastArgon2idParams)
	if err != nil {
		t.Fatalf("HashAPIKey returned error: %v", err)
	}
	verifier, err := NewAPIKeyVerifier(hash, 4)
	if err != nil {
		t.Fatalf("NewAPIKeyVerifier returned error: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := verifier.Verify(ctx, "s3cret-key"); err != nil {
			t.Fatalf("attempt %d: expected key to verify, got %v", i, err)
		}
	}
	if verifier.verified.Len() != 1 {
		t.Fatalf("expected the verified key to be remembered once, got %d", verifier.verified.Len())
	}
	if err := verifier.Verify(ctx, "other"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := verifier.Verify(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty key, got %v", err)
	}

	if _, err := NewAPIKeyVerifier("plain-text", 4); !errors.Is(err, ErrInvalidKeyHash) {
		t.Fatalf("expected ErrInvalidKeyHash, got %v", err)
	}
}

func TestAPIKeyVerifier_RejectsUnsafeHashes(t *testing.T) {
	t.Parallel()

	hash, err := HashAPIKey("s3cret-key", fastArgon2idParams)
	if err != nil {
		t.Fatalf("HashAPIKey returned error: %v", err)
	}
	salt := base64.RawStdEncoding.EncodeToString([]byte("0123456789abcdef"))

	cases := map[string]string{
		"empty digest":     "$argon2id$v=19$m=8192,t=1,p=1$" + salt + "$",
		"short digest":     "$argon2id$v=19$m=8192,t=1,p=1$" + salt + "$" + base64.RawStdEncoding.EncodeToString([]byte("abc")),
		"zero iterations":  strings.Replace(hash, "t=1", "t=0", 1),
		"zero parallelism": strings.Replace(hash, "p=1", "p=0", 1),
		"excessive memory": strings.Replace(hash, "m=8192", "m=4194304", 1),
		"missing salt":     "$argon2id$v=19$m=8192,t=1,p=1$$" + strings.Split(hash, "$")[5],
		"leading garbage":  "x" + hash,
	}
	for name, encoded := range cases {
		if _, err := NewAPIKeyVerifier(encoded, 4); !errors.Is(err, ErrInvalidKeyHash) {
			t.Fatalf("%s: expected ErrInvalidKeyHash from NewAPIKeyVerifier, got %v", name, err)
		}
		if err := VerifyAPIKey(encoded, "anything"); !errors.Is(err, ErrInvalidKeyHash) {
			t.Fatalf("%s: expected ErrInvalidKeyHash from VerifyAPIKey, got %v", name, err)
		}
	}
}

func TestAPIKeyVerifier_BoundsDerivations(t *testing.T) {
	t.Parallel()

	hash, err := HashAPIKey("s3cret-key", fastArgon2idParams)
	if err != nil {
		t.Fatalf("HashAPIKey returned error: %v", err)
	}
	verifier, err := NewAPIKeyVerifier(hash, 4, WithConcurrentKeyChecks(2))
	if err != nil {
		t.Fatalf("NewAPIKeyVerifier returned error: %v", err)
	}

	var active, peak, calls atomic.Int32
	verifier.derive = func(string) []byte {
		calls.Add(1)
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return nil
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := verifier.Verify(ctx, fmt.Sprintf("guess-%d", i)); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("guess %d: expected ErrUnauthorized, got %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent derivations, got %d", got)
	}
	if got := calls.Load(); got != 8 {
		t.Fatalf("expected 8 derivations, got %d", got)
	}

	// A key rejected once is answered from memory.
	if err := verifier.Verify(ctx, "guess-3"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := calls.Load(); got != 8 {
		t.Fatalf("expected no new derivation for a known bad key, got %d", got)
	}

	// With every slot taken, a caller gives up when its context ends.
	if err := verifier.slots.Acquire(ctx, 2); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	defer verifier.slots.Release(2)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := verifier.Verify(cancelled, "new-guess"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGenerateAPIKey(t *testing.T) {
	t.Parallel()

	a, err := GenerateAPIKey(0)
	if err != nil {
		t.Fatalf("GenerateAPIKey returned error: %v", err)
	}
	b, err := GenerateAPIKey(0)
	if err != nil {
		t.Fatalf("GenerateAPIKey returned error: %v", err)
	}
	if a == b || len(a) != 43 {
		t.Fatalf("expected distinct 43 character keys, got %q and %q", a, b)
	}
}
