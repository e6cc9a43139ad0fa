package signer

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/youmark/pkcs8"
)

// RSA signs payloads with RSASSA-PKCS1-v1_5 over SHA-256 and returns Base64.
type RSA struct {
	key *rsa.PrivateKey
}

// NewRSA parses an RSA private key from PEM. passphrase is only used for
// encrypted PKCS#8 blocks.
func NewRSA(pemData []byte, passphrase string) (*RSA, error) {
	key, err := parsePrivateKey(pemData, passphrase)
	if err != nil {
		return nil, fmt.Errorf("rsa signer: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("rsa signer: key is %T, not RSA", key)
	}
	return &RSA{key: rsaKey}, nil
}

func (s *RSA) Sign(payload string) (string, error) {
	digest := sha256.Sum256([]byte(payload))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("rsa sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Ed25519 signs payloads with an Ed25519 key and returns Base64.
type Ed25519 struct {
	key ed25519.PrivateKey
}

// NewEd25519 parses an Ed25519 private key from PEM.
func NewEd25519(pemData []byte, passphrase string) (*Ed25519, error) {
	key, err := parsePrivateKey(pemData, passphrase)
	if err != nil {
		return nil, fmt.Errorf("ed25519 signer: %w", err)
	}
	edKey, ok := asEd25519(key)
	if !ok {
		return nil, fmt.Errorf("ed25519 signer: key is %T, not Ed25519", key)
	}
	return &Ed25519{key: edKey}, nil
}

func (s *Ed25519) Sign(payload string) (string, error) {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, []byte(payload))), nil
}

// FromPEM parses a private key and returns the matching asymmetric signer.
func FromPEM(pemData []byte, passphrase string) (Signer, error) {
	key, err := parsePrivateKey(pemData, passphrase)
	if err != nil {
		return nil, err
	}
	if rsaKey, ok := key.(*rsa.PrivateKey); ok {
		return &RSA{key: rsaKey}, nil
	}
	if edKey, ok := asEd25519(key); ok {
		return &Ed25519{key: edKey}, nil
	}
	return nil, fmt.Errorf("unsupported private key type %T", key)
}

func asEd25519(key any) (ed25519.PrivateKey, bool) {
	switch k := key.(type) {
	case ed25519.PrivateKey:
		return k, true
	case *ed25519.PrivateKey:
		return *k, true
	}
	return nil, false
}

func parsePrivateKey(pemData []byte, passphrase string) (any, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs1 key: %w", err)
		}
		return key, nil
	case "ENCRYPTED PRIVATE KEY":
		if passphrase == "" {
			return nil, errors.New("encrypted private key requires a passphrase")
		}
		key, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("decrypt pkcs8 key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs8 key: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
}
