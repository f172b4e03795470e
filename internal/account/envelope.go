// Package account manages the locally persisted catalog of game accounts:
// encrypted at rest under a key derived from the operator's passphrase, so a
// stolen accounts file is useless without it.
package account

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const envelopeVersionPrefix = "v1:"

// kdfParams are the Argon2id cost parameters used to stretch an operator
// passphrase into a 32-byte master key. Memory-hard by design, unlike the
// HMAC-based key derivation a machine-held master key can use, because here
// the secret a human typed is the only input an attacker can try to guess.
type kdfParams struct {
	time    uint32
	memory  uint32 // KiB
	threads uint8
}

func defaultKDFParams() kdfParams {
	return kdfParams{time: 3, memory: 64 * 1024, threads: 4}
}

// DeriveMasterKey stretches passphrase+salt into a 32-byte AES-256 key.
func DeriveMasterKey(passphrase string, salt []byte) []byte {
	p := defaultKDFParams()
	return argon2.IDKey([]byte(passphrase), salt, p.time, p.memory, p.threads, 32)
}

// NewSalt returns a fresh random salt for DeriveMasterKey.
func NewSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	return salt, nil
}

func envelopeAAD(subject []byte, info string) []byte {
	aad := make([]byte, 0, len(info)+1+len(subject))
	aad = append(aad, info...)
	aad = append(aad, 0)
	aad = append(aad, subject...)
	return aad
}

// EncryptEnvelope encrypts plaintext under masterKey with AES-256-GCM. The
// output is ASCII-safe: "v1:" + base64url(nonce|ciphertext).
func EncryptEnvelope(masterKey, subject []byte, info string, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	aad := envelopeAAD(subject, info)
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)

	buf := make([]byte, 0, len(nonce)+len(ciphertext))
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)

	encoded := base64.RawURLEncoding.EncodeToString(buf)
	return []byte(envelopeVersionPrefix + encoded), nil
}

// DecryptEnvelope decrypts ciphertext previously produced by EncryptEnvelope.
func DecryptEnvelope(masterKey, subject []byte, info string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}

	encoded := strings.TrimSpace(string(ciphertext))
	encoded = strings.TrimPrefix(encoded, envelopeVersionPrefix)

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce := raw[:aead.NonceSize()]
	body := raw[aead.NonceSize():]
	aad := envelopeAAD(subject, info)

	plaintext, err := aead.Open(nil, nonce, body, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
