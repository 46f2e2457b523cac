package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyRing verifies API keys against configured SHA-256 digests, so the
// configuration never holds a usable key.
type KeyRing struct {
	digests [][sha256.Size]byte
}

// NewKeyRing parses hex-encoded SHA-256 digests.
func NewKeyRing(hexDigests []string) (*KeyRing, error) {
	kr := &KeyRing{digests: make([][sha256.Size]byte, 0, len(hexDigests))}
	for i, h := range hexDigests {
		raw, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("api key digest %d is not a hex SHA-256 digest", i)
		}
		var d [sha256.Size]byte
		copy(d[:], raw)
		kr.digests = append(kr.digests, d)
	}
	return kr, nil
}

// DigestAPIKey returns the hex digest to configure for key.
func DigestAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey reports whether key matches a configured digest. Every
// digest is compared so timing does not reveal which one matched.
func (k *KeyRing) VerifyAPIKey(key string) bool {
	if key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))
	match := 0
	for i := range k.digests {
		match |= subtle.ConstantTimeCompare(sum[:], k.digests[i][:])
	}
	return match == 1
}

// Len returns the number of configured keys.
func (k *KeyRing) Len() int { return len(k.digests) }
