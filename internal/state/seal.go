package state

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	saltLen = 16

	// scrypt parameters, matching the interactive-login recommendation.
	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// sealedPrefix marks a sealed record. Plain records are JSON and can
// never start with it.
var sealedPrefix = []byte("sealed:v1:")

// ErrWrongPassphrase is returned when a sealed record cannot be opened.
var ErrWrongPassphrase = errors.New("cannot open stored credentials: wrong passphrase")

type sealer struct {
	aead cipher.AEAD
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	return salt, nil
}

func newSealer(passphrase string, salt []byte) (*sealer, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	return &sealer{aead: aead}, nil
}

func isSealed(raw []byte) bool {
	return bytes.HasPrefix(raw, sealedPrefix)
}

// seal returns prefix || nonce || ciphertext.
func (s *sealer) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(sealedPrefix)+len(nonce)+len(plain)+s.aead.Overhead())
	out = append(out, sealedPrefix...)
	out = append(out, nonce...)

	return s.aead.Seal(out, nonce, plain, sealedPrefix), nil
}

func (s *sealer) open(raw []byte) ([]byte, error) {
	body := raw[len(sealedPrefix):]
	if len(body) < s.aead.NonceSize() {
		return nil, fmt.Errorf("sealed record too short")
	}

	nonce, ct := body[:s.aead.NonceSize()], body[s.aead.NonceSize():]

	plain, err := s.aead.Open(nil, nonce, ct, sealedPrefix)
	if err != nil {
		return nil, ErrWrongPassphrase
	}

	return plain, nil
}
