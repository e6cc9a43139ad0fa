package core

import "fmt"

// Credentials holds API authentication material. Holders take a copy at
// construction time so later mutation of the caller's value has no effect.
type Credentials struct {
	// APIKey is the public API key identifier sent in the X-MBX-APIKEY header.
	APIKey string `json:"api_key" yaml:"api_key"`
	// SecretKey is the shared secret for HMAC signing.
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	// PrivateKeyPEM is an RSA or Ed25519 private key for asymmetric signing.
	PrivateKeyPEM string `json:"private_key_pem,omitempty" yaml:"private_key_pem,omitempty"`
	// PrivateKeyPassphrase decrypts an encrypted PKCS#8 PrivateKeyPEM.
	PrivateKeyPassphrase string `json:"-" yaml:"private_key_passphrase,omitempty"`
}

// Clone returns a copy, or nil for a nil receiver.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// HasAPIKey reports whether an API key is configured.
func (c *Credentials) HasAPIKey() bool {
	return c != nil && c.APIKey != ""
}

func (c *Credentials) String() string {
	if c == nil {
		return "Credentials{}"
	}
	return fmt.Sprintf("Credentials{APIKey:%s}", maskKey(c.APIKey))
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
