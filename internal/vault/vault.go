// Package vault implements the fusion engine's Credential Vault: at
// rest encryption for the credentials map inside an
// Integration.ConnectionConfig, so raw secrets never leave the vault
// unencrypted.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

var (
	ErrMasterKeyEmpty    = errors.New("vault: master key cannot be empty")
	ErrDecryptionFailed  = errors.New("vault: decryption failed, ciphertext may be tampered or key is wrong")
	ErrCiphertextTooShort = errors.New("vault: ciphertext too short to contain salt and nonce")
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Vault encrypts and decrypts integration credential maps with a
// scrypt-derived key over the configured master key. Each call to
// Encrypt derives a fresh key from a random salt, so the same
// plaintext never produces the same ciphertext twice.
type Vault struct {
	masterKey []byte
}

// New builds a Vault over masterKey, the operator-supplied secret
// configured via config.Vault.MasterKey.
func New(masterKey string) (*Vault, error) {
	if masterKey == "" {
		return nil, ErrMasterKeyEmpty
	}
	return &Vault{masterKey: []byte(masterKey)}, nil
}

// Encrypt seals credentials into a base64-encoded blob safe to store
// in the connection_config column alongside the rest of the
// integration row.
func (v *Vault) Encrypt(credentials map[string]string) (string, error) {
	plaintext, err := json.Marshal(credentials)
	if err != nil {
		return "", fmt.Errorf("vault: marshal credentials: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("vault: generate salt: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}

	key, err := v.deriveKey(salt)
	if err != nil {
		return "", err
	}

	sealed := secretbox.Seal(nil, plaintext, &nonce, &key)

	out := make([]byte, 0, saltSize+nonceSize+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	out = append(out, sealed...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt, returning the original credentials map.
func (v *Vault) Decrypt(blob string) (map[string]string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("vault: decode blob: %w", err)
	}
	if len(raw) < saltSize+nonceSize {
		return nil, ErrCiphertextTooShort
	}

	salt := raw[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])
	sealed := raw[saltSize+nonceSize:]

	key, err := v.deriveKey(salt)
	if err != nil {
		return nil, err
	}

	plaintext, ok := secretbox.Open(nil, sealed, &nonce, &key)
	if !ok {
		return nil, ErrDecryptionFailed
	}

	var credentials map[string]string
	if err := json.Unmarshal(plaintext, &credentials); err != nil {
		return nil, fmt.Errorf("vault: unmarshal credentials: %w", err)
	}
	return credentials, nil
}

func (v *Vault) deriveKey(salt []byte) ([keySize]byte, error) {
	var key [keySize]byte
	derived, err := scrypt.Key(v.masterKey, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return key, fmt.Errorf("vault: derive key: %w", err)
	}
	copy(key[:], derived)
	return key, nil
}
