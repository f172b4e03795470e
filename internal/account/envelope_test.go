package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptEnvelopeRoundTrips(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	key := DeriveMasterKey("correct horse battery staple", salt)

	ciphertext, err := EncryptEnvelope(key, salt, "test-info", []byte("top secret"))
	require.NoError(t, err)
	assert.Contains(t, string(ciphertext), envelopeVersionPrefix)

	plaintext, err := DecryptEnvelope(key, salt, "test-info", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "top secret", string(plaintext))
}

func TestDecryptEnvelopeFailsWithWrongPassphrase(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	key := DeriveMasterKey("right passphrase", salt)

	ciphertext, err := EncryptEnvelope(key, salt, "test-info", []byte("top secret"))
	require.NoError(t, err)

	wrongKey := DeriveMasterKey("wrong passphrase", salt)
	_, err = DecryptEnvelope(wrongKey, salt, "test-info", ciphertext)
	assert.Error(t, err)
}

func TestDecryptEnvelopeFailsWithMismatchedInfo(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	key := DeriveMasterKey("passphrase", salt)

	ciphertext, err := EncryptEnvelope(key, salt, "info-a", []byte("secret"))
	require.NoError(t, err)

	_, err = DecryptEnvelope(key, salt, "info-b", ciphertext)
	assert.Error(t, err)
}

func TestEncryptEnvelopeEmptyPlaintext(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	key := DeriveMasterKey("passphrase", salt)

	ciphertext, err := EncryptEnvelope(key, salt, "info", nil)
	require.NoError(t, err)
	assert.Nil(t, ciphertext)
}

func TestDeriveMasterKeyIsDeterministic(t *testing.T) {
	salt := []byte("fixed-salt-value")
	key1 := DeriveMasterKey("same passphrase", salt)
	key2 := DeriveMasterKey("same passphrase", salt)
	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 32)
}

func TestDeriveMasterKeyDiffersBySalt(t *testing.T) {
	key1 := DeriveMasterKey("passphrase", []byte("salt-one-sixteen"))
	key2 := DeriveMasterKey("passphrase", []byte("salt-two-sixteen"))
	assert.NotEqual(t, key1, key2)
}
