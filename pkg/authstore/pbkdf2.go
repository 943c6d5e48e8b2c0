package authstore

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes  = 16
	iterations = 100_000
	keyLen     = 32
)

// HashPassword produces the salted-PBKDF2 storage format
// "<salt>$<hex-digest>", salt and digest both hex-encoded.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("authstore: generating salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)
	digest := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
	return saltHex + "$" + hex.EncodeToString(digest), nil
}

// VerifyPassword checks a password against a stored hash. Hashes
// without a "$" are the legacy plaintext form and compare directly;
// this keeps older provisioned accounts usable without a forced
// re-hash.
//
// Both branches use a constant-time comparison so that verification is
// independent of where in the string a mismatch falls.
func VerifyPassword(password, stored string) bool {
	salt, digestHex, ok := strings.Cut(stored, "$")
	if !ok {
		// Legacy plaintext: the whole stored value is the password.
		return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
	}

	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return false
	}
	wantDigest, err := hex.DecodeString(digestHex)
	if err != nil {
		return false
	}
	gotDigest := pbkdf2.Key([]byte(password), saltBytes, iterations, len(wantDigest), sha256.New)
	return subtle.ConstantTimeCompare(gotDigest, wantDigest) == 1
}

// IsLegacyPlaintext reports whether a stored hash is the legacy
// plaintext form (no "$"). Digest authentication needs the plaintext
// password to compute HA1, which a PBKDF2 digest cannot yield; only
// legacy plaintext accounts can authenticate via Digest. PBKDF2-hashed
// accounts must use Basic auth. This is a constraint of one-way
// hashing, not an oversight.
func IsLegacyPlaintext(stored string) bool {
	return !strings.Contains(stored, "$")
}
