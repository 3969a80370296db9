package oclient

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealedValue is returned when a stored value cannot be opened with the
// configured key.
var ErrSealedValue = errors.New("stored credential cannot be opened")

// Sealer encrypts serialized credentials before they reach a store backend.
// A nil *Sealer stores plain JSON.
type Sealer struct {
	key []byte
}

// NewSealer creates a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("store key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// Marshal serializes cred and seals it when the sealer is configured.
func (s *Sealer) Marshal(cred *Credential) ([]byte, error) {
	plain, err := json.Marshal(cred)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return plain, nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

// Unmarshal reverses Marshal.
func (s *Sealer) Unmarshal(data []byte) (*Credential, error) {
	plain := data
	if s != nil {
		aead, err := chacha20poly1305.NewX(s.key)
		if err != nil {
			return nil, err
		}
		if len(data) < aead.NonceSize() {
			return nil, ErrSealedValue
		}
		nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
		plain, err = aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return nil, ErrSealedValue
		}
	}
	var cred Credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}
