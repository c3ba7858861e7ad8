// Package encryption provides AES-256-GCM sealing for session payloads
// with support for key rotation.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnknownKey is returned when a ciphertext was sealed with a key the
// keyring does not hold.
var ErrUnknownKey = errors.New("encryption: unknown key id")

// Encryptor seals and opens session payloads.
type Encryptor interface {
	// Encrypt seals plaintext with the active key.
	Encrypt(plaintext []byte) (string, error)

	// Decrypt opens a ciphertext produced by Encrypt with any known key.
	Decrypt(ciphertext string) ([]byte, error)
}

type aesKey struct {
	id  string
	gcm cipher.AEAD
}

// Keyring implements Encryptor with one active key and any number of
// retired keys that are only used for decryption.
//
// Ciphertexts have the form "<keyID>.<base64(nonce|sealed)>" where keyID is
// the first 8 hex characters of SHA-256(key).
type Keyring struct {
	active *aesKey
	keys   map[string]*aesKey
}

// NewKeyring creates a keyring. Each key must be 32 bytes, raw or
// base64-encoded. The first key is used for encryption.
func NewKeyring(active string, previous ...string) (*Keyring, error) {
	k, err := newAESKey(active)
	if err != nil {
		return nil, fmt.Errorf("active key: %w", err)
	}

	ring := &Keyring{
		active: k,
		keys:   map[string]*aesKey{k.id: k},
	}

	for i, p := range previous {
		if strings.TrimSpace(p) == "" {
			continue
		}
		pk, err := newAESKey(p)
		if err != nil {
			return nil, fmt.Errorf("previous key %d: %w", i, err)
		}
		if _, ok := ring.keys[pk.id]; !ok {
			ring.keys[pk.id] = pk
		}
	}

	return ring, nil
}

func newAESKey(key string) (*aesKey, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		keyBytes = []byte(key)
	}

	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(keyBytes))
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesKey{id: KeyID(keyBytes), gcm: gcm}, nil
}

// KeyID returns the identifier embedded in ciphertexts sealed with key.
func KeyID(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:4])
}

// ActiveKeyID returns the ID of the key used for encryption.
func (k *Keyring) ActiveKeyID() string {
	return k.active.id
}

// Encrypt seals plaintext with the active key.
func (k *Keyring) Encrypt(plaintext []byte) (string, error) {
	gcm := k.active.gcm

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, []byte(k.active.id))

	return k.active.id + "." + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext with the key named in its prefix.
func (k *Keyring) Decrypt(ciphertext string) ([]byte, error) {
	id, body, ok := strings.Cut(ciphertext, ".")
	if !ok {
		return nil, fmt.Errorf("malformed ciphertext")
	}

	key, found := k.keys[id]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, id)
	}

	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := key.gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	plaintext, err := key.gcm.Open(nil, data[:nonceSize], data[nonceSize:], []byte(id))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// GenerateKey generates a new random 32-byte key, base64-encoded.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// NoOpEncryptor only base64-encodes. For development without a key.
type NoOpEncryptor struct{}

// NewNoOpEncryptor creates a new no-operation encryptor.
func NewNoOpEncryptor() *NoOpEncryptor {
	return &NoOpEncryptor{}
}

// Encrypt returns the plaintext as base64.
func (e *NoOpEncryptor) Encrypt(plaintext []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(plaintext), nil
}

// Decrypt decodes base64 and returns the plaintext.
func (e *NoOpEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(ciphertext)
}
