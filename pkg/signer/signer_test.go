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
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"

	"nakula/pkg/core"
)

const (
	docSecret  = "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	docPayload = "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	docSig     = "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
)

var lowerHex = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestHMAC_KnownVector(t *testing.T) {
	s, err := NewHMAC(docSecret)
	require.NoError(t, err)

	sig, err := s.Sign(docPayload)
	assert.NoError(t, err)
	assert.Equal(t, docSig, sig)
}

func TestHMAC_Deterministic(t *testing.T) {
	s, err := NewHMAC("S")
	require.NoError(t, err)

	first, _ := s.Sign("symbol=LTCBTC&side=BUY")
	second, _ := s.Sign("symbol=LTCBTC&side=BUY")
	other, _ := s.Sign("symbol=LTCBTC&side=SELL")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.Regexp(t, lowerHex, first)
	assert.Len(t, first, 64)
}

func TestNewHMAC_EmptySecret(t *testing.T) {
	s, err := NewHMAC("")
	assert.Error(t, err)
	assert.Nil(t, s)
}

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func pkcs8PEM(t *testing.T, key any) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func TestRSA_SignVerifies(t *testing.T) {
	key := rsaKey(t)

	for name, data := range map[string][]byte{
		"pkcs8": pkcs8PEM(t, key),
		"pkcs1": pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
	} {
		t.Run(name, func(t *testing.T) {
			s, err := NewRSA(data, "")
			require.NoError(t, err)

			sig, err := s.Sign(docPayload)
			require.NoError(t, err)

			raw, err := base64.StdEncoding.DecodeString(sig)
			require.NoError(t, err)
			digest := sha256.Sum256([]byte(docPayload))
			assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], raw))
		})
	}
}

func TestRSA_EncryptedKey(t *testing.T) {
	key := rsaKey(t)
	der, err := pkcs8.MarshalPrivateKey(key, []byte("hunter2"), nil)
	require.NoError(t, err)
	data := pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der})

	s, err := NewRSA(data, "hunter2")
	require.NoError(t, err)
	sig, err := s.Sign("payload")
	assert.NoError(t, err)
	assert.NotEmpty(t, sig)

	_, err = NewRSA(data, "wrong")
	assert.Error(t, err)

	_, err = NewRSA(data, "")
	assert.Error(t, err)
}

func TestEd25519_SignVerifies(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	s, err := NewEd25519(pkcs8PEM(t, priv), "")
	require.NoError(t, err)

	sig, err := s.Sign(docPayload)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, []byte(docPayload), raw))
}

func TestFromPEM(t *testing.T) {
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	s, err := FromPEM(pkcs8PEM(t, rsaKey(t)), "")
	require.NoError(t, err)
	assert.IsType(t, &RSA{}, s)

	s, err = FromPEM(pkcs8PEM(t, edKey), "")
	require.NoError(t, err)
	assert.IsType(t, &Ed25519{}, s)
}

func TestMalformedKeysFailAtConstruction(t *testing.T) {
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name  string
		build func() error
	}{
		{"not_pem", func() error { _, err := NewRSA([]byte("garbage"), ""); return err }},
		{"bad_der", func() error {
			_, err := FromPEM(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1, 2, 3}}), "")
			return err
		}},
		{"unknown_block", func() error {
			_, err := FromPEM(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}}), "")
			return err
		}},
		{"wrong_type_rsa", func() error { _, err := NewRSA(pkcs8PEM(t, edKey), ""); return err }},
		{"wrong_type_ed25519", func() error { _, err := NewEd25519(pkcs8PEM(t, rsaKey(t)), ""); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.build())
		})
	}
}

func TestFromCredentials(t *testing.T) {
	s, err := FromCredentials(nil)
	assert.NoError(t, err)
	assert.Nil(t, s)

	s, err = FromCredentials(&core.Credentials{APIKey: "K"})
	assert.NoError(t, err)
	assert.Nil(t, s)

	s, err = FromCredentials(&core.Credentials{APIKey: "K", SecretKey: "S"})
	assert.NoError(t, err)
	assert.IsType(t, &HMAC{}, s)

	s, err = FromCredentials(&core.Credentials{SecretKey: "S", PrivateKeyPEM: string(pkcs8PEM(t, rsaKey(t)))})
	assert.NoError(t, err)
	assert.IsType(t, &RSA{}, s)

	_, err = FromCredentials(&core.Credentials{PrivateKeyPEM: "nope"})
	assert.Error(t, err)
}
