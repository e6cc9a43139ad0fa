// Package signer implements the request signing strategies used for
// authenticated REST and WebSocket API calls.
//
// All strategies satisfy Signer. Key material is parsed when a signer is
// built, so a constructed signer never fails on malformed keys at Sign time.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"nakula/pkg/core"
)

// Signer turns a canonical payload into a signature string.
type Signer interface {
	Sign(payload string) (string, error)
}

// HMAC signs payloads with HMAC-SHA256 and returns lowercase hex.
type HMAC struct {
	secret []byte
}

// NewHMAC creates an HMAC signer for the shared secret.
func NewHMAC(secret string) (*HMAC, error) {
	if secret == "" {
		return nil, errors.New("hmac signer: secret is required")
	}
	return &HMAC{secret: []byte(secret)}, nil
}

// Sign returns the 64-character hex digest of payload.
func (s *HMAC) Sign(payload string) (string, error) {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FromCredentials picks a signer for creds: a private key takes precedence over
// the shared secret. It returns nil, nil when creds carry neither.
func FromCredentials(creds *core.Credentials) (Signer, error) {
	switch {
	case creds == nil:
		return nil, nil
	case creds.PrivateKeyPEM != "":
		s, err := FromPEM([]byte(creds.PrivateKeyPEM), creds.PrivateKeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("signer from credentials: %w", err)
		}
		return s, nil
	case creds.SecretKey != "":
		return NewHMAC(creds.SecretKey)
	}
	return nil, nil
}
