package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	// SecretPrefix identifies dashboard API secrets
	SecretPrefix = "aly_"
	// SecretLength is the total length of random bytes (32 bytes = 256 bits)
	SecretLength = 32
)

// GenerateSecret creates a new API secret.
// Format: aly_<base64url(32 random bytes)>
// The plaintext is returned exactly once, only the bcrypt hash is stored.
func GenerateSecret() (secret string, secretHash string, err error) {
	randomBytes := make([]byte, SecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	secret = SecretPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), SecretCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash secret: %w", err)
	}

	return secret, string(hash), nil
}

// ValidateSecretFormat checks if a secret has the correct shape
func ValidateSecretFormat(secret string) error {
	if !strings.HasPrefix(secret, SecretPrefix) {
		return fmt.Errorf("secret must start with %q", SecretPrefix)
	}

	encodedPart := strings.TrimPrefix(secret, SecretPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("secret is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid secret encoding: %w", err)
	}

	return nil
}

// SecretVerifier compares presented API secrets against stored hashes.
//
// Two operational concerns are handled here rather than in callers:
//
//   - Hashing is CPU-bound, so concurrent comparisons are bounded by a
//     weighted semaphore to keep hash-cost amplification from starving
//     request workers.
//   - Repeat requests with the same valid key skip bcrypt entirely via a
//     small LRU of SHA-256 digests of (key id, secret, stored hash).
//     Including the stored hash in the digest means regenerating a key
//     invalidates its cache entries without explicit eviction.
type SecretVerifier struct {
	sem   *semaphore.Weighted
	cache *lru.Cache[string, bool]

	dummyOnce sync.Once
	dummyHash []byte
}

// NewSecretVerifier creates a verifier allowing at most maxConcurrent
// simultaneous hash comparisons and caching up to cacheSize verified keys.
func NewSecretVerifier(maxConcurrent int64, cacheSize int) (*SecretVerifier, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if cacheSize <= 0 {
		cacheSize = 512
	}

	cache, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret cache: %w", err)
	}

	return &SecretVerifier{
		sem:   semaphore.NewWeighted(maxConcurrent),
		cache: cache,
	}, nil
}

// Verify reports whether secret matches storedHash for the given key id.
// It returns an error only when the context is cancelled while waiting for
// a hashing slot; a mismatch is a plain false.
func (v *SecretVerifier) Verify(ctx context.Context, keyID, secret, storedHash string) (bool, error) {
	digest := cacheDigest(keyID, secret, storedHash)
	if ok, found := v.cache.Get(digest); found {
		return ok, nil
	}

	if err := v.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("failed to acquire hashing slot: %w", err)
	}
	defer v.sem.Release(1)

	ok := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(secret)) == nil
	if ok {
		// Only cache successes. A negative cache would let an attacker
		// probe without paying the hash cost signal.
		v.cache.Add(digest, true)
	}
	return ok, nil
}

// VerifyAbsent burns the same hashing work as a real comparison for a key
// id that does not exist, so lookup misses and secret mismatches are not
// distinguishable by timing.
func (v *SecretVerifier) VerifyAbsent(ctx context.Context, secret string) error {
	v.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("accessly-absent-key"), SecretCost)
		if err == nil {
			v.dummyHash = hash
		}
	})
	if v.dummyHash == nil {
		return nil
	}

	if err := v.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire hashing slot: %w", err)
	}
	defer v.sem.Release(1)

	_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(secret))
	return nil
}

func cacheDigest(keyID, secret, storedHash string) string {
	h := sha256.Sum256([]byte(keyID + "\x00" + secret + "\x00" + storedHash))
	return hex.EncodeToString(h[:])
}
