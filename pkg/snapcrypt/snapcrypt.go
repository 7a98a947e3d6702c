package snapcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// AESGCMNonceSize is the standard nonce size for GCM (12 bytes)
	AESGCMNonceSize = 12
	// KeySizeAES256 is the key size for AES-256 (32 bytes)
	KeySizeAES256 = 32
)

// derivationInfo binds derived keys to the snapshot-slot context.
var derivationInfo = []byte("session-snapshot-v1")

// Cipher seals and opens snapshot slots with AES-256-GCM. The working key is
// derived from the configured key material with HKDF-SHA256 so raw config
// bytes never touch the cipher directly.
type Cipher struct {
	key []byte
}

// New derives a cipher from the given key material (at least 16 bytes).
func New(keyMaterial []byte) (*Cipher, error) {
	if len(keyMaterial) < 16 {
		return nil, errors.New("key material too short")
	}

	key := make([]byte, KeySizeAES256)
	kdf := hkdf.New(sha256.New, keyMaterial, nil, derivationInfo)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Seal encrypts plaintext. Format: Nonce (12 bytes) || Ciphertext (including tag).
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	nonce := make([]byte, AESGCMNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, derivationInfo)

	result := make([]byte, 0, len(nonce)+len(ciphertext))
	result = append(result, nonce...)
	result = append(result, ciphertext...)
	return result, nil
}

// Open decrypts a sealed slot.
func (c *Cipher) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < AESGCMNonceSize {
		return nil, errors.New("sealed data too short")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	nonce := sealed[:AESGCMNonceSize]
	ciphertext := sealed[AESGCMNonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, derivationInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
