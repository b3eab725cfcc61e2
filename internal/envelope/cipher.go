package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"

	errspkg "github.com/couriermq/courier/internal/errors"
)

const (
	kdfIterations = 4096
	kdfKeyLength  = 32
)

// defaultKDFSalt is used when the caller supplies a key without a salt.
// Both sides must agree on the salt for the derived key to match.
var defaultKDFSalt = []byte("courier/envelope")

func deriveKey(key, salt []byte) []byte {
	if len(salt) == 0 {
		salt = defaultKDFSalt
	}
	return pbkdf2.Key(key, salt, kdfIterations, kdfKeyLength, sha256.New)
}

// encryptPayload encrypts the serialized payload with AES-256-CBC under a
// key derived from key and salt. The random IV is prepended to the
// ciphertext.
func encryptPayload(plain, key, salt []byte) ([]byte, error) {
	block, err := aes.NewCipher(deriveKey(key, salt))
	if err != nil {
		return nil, errspkg.Normalize("envelope.encrypt", err)
	}

	padded := padPKCS7(plain, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, errspkg.Normalize("envelope.encrypt", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// decryptPayload reverses encryptPayload. A ciphertext that is too short,
// misaligned, or padded wrongly (the usual result of a wrong key) fails as
// invalid.
func decryptPayload(ciphertext, key, salt []byte) ([]byte, error) {
	if len(ciphertext) < 2*aes.BlockSize || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "envelope.decrypt", "ciphertext length %d is not block aligned", len(ciphertext))
	}

	block, err := aes.NewCipher(deriveKey(key, salt))
	if err != nil {
		return nil, errspkg.Normalize("envelope.decrypt", err)
	}

	body := make([]byte, len(ciphertext)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, ciphertext[:aes.BlockSize]).CryptBlocks(body, ciphertext[aes.BlockSize:])
	return unpadPKCS7(body)
}

func padPKCS7(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpadPKCS7(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "envelope.decrypt", "empty ciphertext body")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "envelope.decrypt", "invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if c != byte(n) {
			return nil, errspkg.New(errspkg.KindInvalidArgument, "envelope.decrypt", "invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
