package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// DeriveKey turns the configured secret into a secretbox key.
func DeriveKey(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// Seal encrypts plain with secretbox and returns hex(nonce || box).
func Seal(plain []byte, key [32]byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("nonce gen: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &key)
	return hex.EncodeToString(sealed), nil
}

// Open reverses Seal.
func Open(encHex string, key [32]byte) (string, error) {
	data, err := hex.DecodeString(encHex)
	if err != nil {
		return "", fmt.Errorf("invalid hex: %w", err)
	}
	if len(data) < nonceSize+secretbox.Overhead {
		return "", errors.New("invalid ciphertext")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &key)
	if !ok {
		return "", errors.New("decrypt: authentication failed")
	}
	return string(plain), nil
}
