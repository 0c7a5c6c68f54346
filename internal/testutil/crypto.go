package testutil

import (
	"encoding/base64"
	"testing"

	"github.com/vdavid/mailpilot/internal/crypto"
)

// GetTestEncryptor returns an encryptor with a fixed key.
func GetTestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	base64Key := base64.StdEncoding.EncodeToString(key)

	encryptor, err := crypto.NewEncryptor(base64Key)
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}
	return encryptor
}

// SealPassword encrypts password with the test key, failing the test on error.
func SealPassword(t *testing.T, password string) []byte {
	t.Helper()

	sealed, err := GetTestEncryptor(t).Encrypt(password)
	if err != nil {
		t.Fatalf("Failed to encrypt password: %v", err)
	}
	return sealed
}
