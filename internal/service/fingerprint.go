package service

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint identifies a body independently of case and whitespace. It is
// stored as the item's content id and never reveals the body.
func Fingerprint(body string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(body), " "))
	sum := blake2b.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// sampled picks a stable fraction of fingerprints for audit review
func sampled(fingerprint string, rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	raw, err := hex.DecodeString(fingerprint)
	if err != nil || len(raw) < 8 {
		return false
	}
	return float64(binary.BigEndian.Uint64(raw[:8]))/math.MaxUint64 < rate
}
