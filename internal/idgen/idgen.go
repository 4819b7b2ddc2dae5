// Package idgen provides cryptographically random ID generation.
//
// Order, run, and reservation IDs are generated once and never reused.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// New generates a UUID-like random ID (32 hex chars with dashes).
func New() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

// WithPrefix generates a random ID with a prefix (e.g. "ord_", "run_", "dec_").
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// Order returns a fresh order ID.
func Order() string { return WithPrefix("ord_") }

// Run returns a fresh pipeline run ID.
func Run() string { return WithPrefix("run_") }

// Reservation returns a fresh budget reservation reference.
func Reservation() string { return WithPrefix("rsv_") }
