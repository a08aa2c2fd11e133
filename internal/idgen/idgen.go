// Package idgen generates short, collision-avoiding spec identifiers.
package idgen

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// DefaultLength is the length of generated spec IDs.
const DefaultLength = 8

// EncodeBase36 converts a byte slice to a base36 string of the given length.
// Shorter encodings are zero-padded; longer ones keep the least significant
// digits so two calls with the same input always agree.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var b strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		b.WriteByte(chars[i])
	}

	s := b.String()
	if len(s) < length {
		s = strings.Repeat("0", length-len(s)) + s
	}
	if len(s) > length {
		s = s[len(s)-length:]
	}
	return s
}

// SpecID creates a hash-based identifier for a spec from its name and
// creation time. The nonce exists to resolve hash collisions: callers that
// detect an existing spec with the same ID retry with nonce+1.
func SpecID(name string, createdAt time.Time, nonce int) string {
	content := fmt.Sprintf("%s|%d|%d", name, createdAt.UnixNano(), nonce)
	sum := sha256.Sum256([]byte(content))
	return EncodeBase36(sum[:], DefaultLength)
}

// ShortID returns the first 6 characters of a spec ID, used in branch names.
// IDs shorter than 6 characters are returned unchanged.
func ShortID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[:6]
}
