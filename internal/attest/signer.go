// Package attest produces non-repudiation signatures for pipeline stage records.
package attest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// ErrNoSecret is returned when a signer is constructed without key material.
var ErrNoSecret = errors.New("attest: signing secret is empty")

// Signer signs stage attestations. Implementations may delegate to an
// external key custodian; a signing failure is surfaced to the stage,
// never silently ignored.
type Signer interface {
	Sign(message []byte) (string, error)
}

// HMACSigner signs messages with HMAC-SHA256.
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner creates an HMAC signer from a shared secret.
func NewHMACSigner(secret string) (*HMACSigner, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &HMACSigner{secret: []byte(secret)}, nil
}

// Sign computes HMAC-SHA256 of the message and returns it hex-encoded.
func (s *HMACSigner) Sign(message []byte) (string, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks a signature produced by Sign.
func (s *HMACSigner) Verify(message []byte, signature string) bool {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(message)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Canonical marshals a payload to its canonical JSON form for signing.
func Canonical(payload any) ([]byte, error) {
	return json.Marshal(payload)
}

var _ Signer = (*HMACSigner)(nil)
