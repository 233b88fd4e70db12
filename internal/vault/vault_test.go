package vault_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/fusion/internal/vault"
)

func TestVault_EncryptDecryptRoundTrip(t *testing.T) {
	v, err := vault.New("test-master-key-do-not-use-in-prod")
	require.NoError(t, err)

	creds := map[string]string{"apiKey": "sk-12345", "username": "svc-account"}

	blob, err := v.Encrypt(creds)
	require.NoError(t, err)
	assert.NotContains(t, blob, "sk-12345")

	got, err := v.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, creds, got)
}

func TestVault_EncryptIsNonDeterministic(t *testing.T) {
	v, err := vault.New("test-master-key-do-not-use-in-prod")
	require.NoError(t, err)

	creds := map[string]string{"apiKey": "sk-12345"}

	blob1, err := v.Encrypt(creds)
	require.NoError(t, err)
	blob2, err := v.Encrypt(creds)
	require.NoError(t, err)

	assert.NotEqual(t, blob1, blob2)
}

func TestVault_DecryptWrongKeyFails(t *testing.T) {
	v1, err := vault.New("key-one")
	require.NoError(t, err)
	v2, err := vault.New("key-two")
	require.NoError(t, err)

	blob, err := v1.Encrypt(map[string]string{"apiKey": "secret"})
	require.NoError(t, err)

	_, err = v2.Decrypt(blob)
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
}

func TestNew_EmptyMasterKey(t *testing.T) {
	_, err := vault.New("")
	assert.ErrorIs(t, err, vault.ErrMasterKeyEmpty)
}
