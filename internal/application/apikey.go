package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

var (
	ErrInvalidKeyHash         = errors.New("invalid api key hash format")
	ErrIncompatibleKeyVersion = errors.New("incompatible api key hash version")
)

type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// GenerateAPIKey returns a random url-safe key with n bytes of entropy.
func GenerateAPIKey(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func HashAPIKey(key string, params Argon2idParams) (string, error) {
	if key == "" {
		return "", errors.New("api key must not be empty")
	}
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	// $argon2id$v=19$m=...,t=...,p=...$salt$hash
	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.Memory, params.Iterations, params.Parallelism, b64Salt, b64Hash), nil
}

// Bounds accepted when decoding a stored hash. The memory cap keeps a
// hand-edited hash from asking argon2 for more than 1 GiB per check.
const (
	minKeyHashSalt   = 8
	minKeyHashDigest = 16
	maxKeyHashMemory = 1 << 20
)

// keyHash is a decoded argon2id hash.
type keyHash struct {
	params Argon2idParams
	salt   []byte
	digest []byte
}

func parseKeyHash(encodedHash string) (keyHash, error) {
	parts := strings.Split(strings.TrimSpace(encodedHash), "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return keyHash{}, ErrInvalidKeyHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return keyHash{}, ErrInvalidKeyHash
	}
	if version != argon2.Version {
		return keyHash{}, ErrIncompatibleKeyVersion
	}

	var h keyHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Iterations, &h.params.Parallelism); err != nil {
		return keyHash{}, ErrInvalidKeyHash
	}
	if h.params.Iterations < 1 || h.params.Parallelism < 1 ||
		h.params.Memory < 8*uint32(h.params.Parallelism) || h.params.Memory > maxKeyHashMemory {
		return keyHash{}, fmt.Errorf("%w: argon2 parameters out of range", ErrInvalidKeyHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(h.salt) < minKeyHashSalt {
		return keyHash{}, fmt.Errorf("%w: salt too short", ErrInvalidKeyHash)
	}
	if h.digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(h.digest) < minKeyHashDigest {
		return keyHash{}, fmt.Errorf("%w: digest too short", ErrInvalidKeyHash)
	}
	h.params.SaltLength = uint32(len(h.salt))
	h.params.KeyLength = uint32(len(h.digest))
	return h, nil
}

func (h keyHash) derive(key string) []byte {
	return argon2.IDKey([]byte(key), h.salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
}

// VerifyAPIKey checks key against an encoded argon2id hash. A mismatch yields
// ErrUnauthorized; a malformed hash yields ErrInvalidKeyHash.
func VerifyAPIKey(encodedHash, key string) error {
	h, err := parseKeyHash(encodedHash)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(h.digest, h.derive(key)) == 1 {
		return nil
	}
	return ErrUnauthorized
}

const (
	defaultVerifiedKeys        = 64
	defaultRejectedKeys        = 1024
	defaultConcurrentKeyChecks = 2
)

// APIKeyVerifier checks bearer keys against the configured hash. Outcomes are
// remembered by digest in both directions so argon2 runs only on first sight
// of a key, and at most a fixed number of derivations run at once.
type APIKeyVerifier struct {
	hash     keyHash
	derive   func(key string) []byte
	slots    *semaphore.Weighted
	verified *lru.Cache[string, struct{}]
	rejected *lru.Cache[string, struct{}]
}

// APIKeyVerifierOption customizes an APIKeyVerifier.
type APIKeyVerifierOption func(*apiKeyVerifierOptions)

type apiKeyVerifierOptions struct {
	rejected   int
	concurrent int64
}

// WithRejectedKeyCache sets how many rejected key digests are remembered.
func WithRejectedKeyCache(size int) APIKeyVerifierOption {
	return func(o *apiKeyVerifierOptions) {
		if size > 0 {
			o.rejected = size
		}
	}
}

// WithConcurrentKeyChecks bounds the argon2 derivations running at once.
func WithConcurrentKeyChecks(n int) APIKeyVerifierOption {
	return func(o *apiKeyVerifierOptions) {
		if n > 0 {
			o.concurrent = int64(n)
		}
	}
}

// NewAPIKeyVerifier decodes and validates the hash up front.
func NewAPIKeyVerifier(encodedHash string, cacheSize int, opts ...APIKeyVerifierOption) (*APIKeyVerifier, error) {
	h, err := parseKeyHash(encodedHash)
	if err != nil {
		return nil, err
	}

	o := apiKeyVerifierOptions{rejected: defaultRejectedKeys, concurrent: defaultConcurrentKeyChecks}
	for _, opt := range opts {
		opt(&o)
	}
	if cacheSize <= 0 {
		cacheSize = defaultVerifiedKeys
	}

	verified, err := lru.New[string, struct{}](cacheSize)
	if err != nil {
		return nil, err
	}
	rejected, err := lru.New[string, struct{}](o.rejected)
	if err != nil {
		return nil, err
	}
	return &APIKeyVerifier{
		hash:     h,
		derive:   h.derive,
		slots:    semaphore.NewWeighted(o.concurrent),
		verified: verified,
		rejected: rejected,
	}, nil
}

// Verify returns nil when key matches the configured hash. It waits for a
// free derivation slot and gives up when ctx ends.
func (v *APIKeyVerifier) Verify(ctx context.Context, key string) error {
	if v == nil {
		return fmt.Errorf("APIKeyVerifier is nil")
	}
	if key == "" {
		return ErrUnauthorized
	}

	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	if v.verified.Contains(digest) {
		return nil
	}
	if v.rejected.Contains(digest) {
		return ErrUnauthorized
	}

	if err := v.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for api key check: %w", err)
	}
	derived := v.derive(key)
	v.slots.Release(1)

	if subtle.ConstantTimeCompare(v.hash.digest, derived) != 1 {
		v.rejected.Add(digest, struct{}{})
		return ErrUnauthorized
	}
	v.verified.Add(digest, struct{}{})
	return nil
}
