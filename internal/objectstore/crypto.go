package objectstore

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MethodXChaCha20Poly1305 is recorded as the encryption method of photos sealed by Encryptor.
const MethodXChaCha20Poly1305 = "xchacha20-poly1305"

var (
	// ErrEncryptionDisabled is returned when no encryption secret is configured.
	ErrEncryptionDisabled = errors.New("content encryption is not configured")
	// ErrCiphertext is returned for content that was not sealed with the owner's key.
	ErrCiphertext = errors.New("ciphertext cannot be opened")
)

// Encryptor seals photo content with a per-user key derived from one server secret.
type Encryptor struct {
	secret []byte
}

// NewEncryptor returns ErrEncryptionDisabled when secret is empty.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, ErrEncryptionDisabled
	}
	return &Encryptor{secret: []byte(secret)}, nil
}

func (e *Encryptor) Method() string {
	return MethodXChaCha20Poly1305
}

func (e *Encryptor) key(ownerID uuid.UUID) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, e.secret, ownerID[:], []byte("photovault photo content"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Seal returns nonce || ciphertext. The photo id is bound as additional data.
func (e *Encryptor) Seal(ownerID, photoID uuid.UUID, plaintext []byte) ([]byte, error) {
	key, err := e.key(ownerID)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, photoID[:]), nil
}

// Open reverses Seal.
func (e *Encryptor) Open(ownerID, photoID uuid.UUID, sealed []byte) ([]byte, error) {
	key, err := e.key(ownerID)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertext
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, photoID[:])
	if err != nil {
		return nil, ErrCiphertext
	}
	return plaintext, nil
}
