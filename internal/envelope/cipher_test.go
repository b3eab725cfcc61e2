package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/sha512"
	"testing"

	errspkg "github.com/couriermq/courier/internal/errors"
)

func TestEncryptDecryptPayload(t *testing.T) {
	key := []byte("correct horse battery staple")
	for _, size := range []int{0, 1, 15, 16, 17, 1000} {
		plain := bytes.Repeat([]byte{0xAB}, size)

		ct, err := encryptPayload(plain, key, nil)
		if err != nil {
			t.Fatalf("size %d: encrypt: %v", size, err)
		}
		if len(ct)%aes.BlockSize != 0 || len(ct) < 2*aes.BlockSize {
			t.Errorf("size %d: ciphertext length %d not block shaped", size, len(ct))
		}

		got, err := decryptPayload(ct, key, nil)
		if err != nil {
			t.Fatalf("size %d: decrypt: %v", size, err)
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("size %d: round trip mismatch", size)
		}
	}
}

func TestEncryptProducesFreshIV(t *testing.T) {
	key := []byte("k")
	plain := []byte("same plaintext")

	a, err := encryptPayload(plain, key, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := encryptPayload(plain, key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext are identical")
	}
}

func TestDecryptRejectsMalformedCiphertext(t *testing.T) {
	key := []byte("k")
	for _, in := range [][]byte{nil, {1, 2, 3}, bytes.Repeat([]byte{0}, aes.BlockSize), bytes.Repeat([]byte{0}, 33)} {
		if _, err := decryptPayload(in, key, nil); !errspkg.IsKind(err, errspkg.KindInvalidArgument) {
			t.Errorf("len %d: err = %v, want invalid argument", len(in), err)
		}
	}
}

func TestSaltChangesDerivedKey(t *testing.T) {
	key := []byte("shared")
	ct, err := encryptPayload([]byte("payload"), key, []byte("salt-a"))
	if err != nil {
		t.Fatal(err)
	}
	if got, err := decryptPayload(ct, key, []byte("salt-b")); err == nil {
		t.Errorf("different salt decrypted to %q", got)
	}
}

func TestUnpadRejectsBadPadding(t *testing.T) {
	bad := [][]byte{
		{},
		{0x00},
		bytes.Repeat([]byte{0x11}, 16),
		append(bytes.Repeat([]byte{7}, 14), 3, 2),
	}
	for _, in := range bad {
		if _, err := unpadPKCS7(in); err == nil {
			t.Errorf("unpad accepted %x", in)
		}
	}

	good := append([]byte("data"), 4, 4, 4, 4)
	out, err := unpadPKCS7(good)
	if err != nil {
		t.Fatalf("unpad: %v", err)
	}
	if string(out) != "data" {
		t.Errorf("unpad = %q", out)
	}
}

func TestDigestMatchesSingleShotHash(t *testing.T) {
	headers := bytes.Repeat([]byte{0x01}, 2000)
	payload := bytes.Repeat([]byte{0x02}, 5000) // spans multiple chunks

	got, err := computeDigest("sha512", headers, payload)
	if err != nil {
		t.Fatal(err)
	}

	whole := sha512.Sum512(append(append([]byte{}, headers...), payload...))
	if !bytes.Equal(got, whole[:]) {
		t.Error("chunked digest differs from single-shot digest")
	}
}

func TestDigestAlgorithmGates(t *testing.T) {
	if _, err := computeDigest("md5", nil, nil); !errspkg.IsKind(err, errspkg.KindNotImplemented) {
		t.Errorf("md5 err = %v, want not implemented", err)
	}
	if _, err := computeDigest("whirlpool", nil, nil); !errspkg.IsKind(err, errspkg.KindInvalidArgument) {
		t.Errorf("whirlpool err = %v, want invalid argument", err)
	}
}
