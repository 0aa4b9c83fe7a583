package mfa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const backupCodeBytes = 4

var (
	ErrEncryptionKeyMissing = errors.New("MFA encryption key is not configured")
	ErrEncryptionKeyInvalid = errors.New("MFA encryption key must be 32 bytes of hex")
	ErrCiphertextInvalid    = errors.New("stored secret ciphertext is malformed")
)

func newAEAD(hexKey string) (cipher.AEAD, error) {
	if hexKey == "" {
		return nil, ErrEncryptionKeyMissing
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return nil, ErrEncryptionKeyInvalid
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise cipher: %w", err)
	}

	return cipher.NewGCM(block)
}

// sealSecret encrypts with a fresh random nonce per record; the nonce is
// prepended to the ciphertext.
func sealSecret(aead cipher.AEAD, secret string) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, []byte(secret), nil), nil
}

func openSecret(aead cipher.AEAD, blob []byte) (string, error) {
	if len(blob) < aead.NonceSize() {
		return "", ErrCiphertextInvalid
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}

	return string(plaintext), nil
}

// generateBackupCodes returns n single-use codes: 4 random bytes as
// upper-case hex, 8 characters, easy to transcribe.
func generateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		raw := make([]byte, backupCodeBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes = append(codes, strings.ToUpper(hex.EncodeToString(raw)))
	}
	return codes, nil
}

func hashBackupCode(code string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash backup code: %w", err)
	}
	return string(hash), nil
}

func matchBackupCode(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
