package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength        = 32
	saltLength       = 32
	pbkdf2Iterations = 100000
)

// DeriveKey derives a 32-byte subkey from a master secret using HKDF-SHA256.
// Different contexts yield independent keys.
func DeriveKey(master []byte, context string) ([]byte, error) {
	if len(master) == 0 {
		return nil, errors.New("master secret is empty")
	}
	key := make([]byte, keyLength)
	r := hkdf.New(sha256.New, master, nil, []byte(context))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

// PassphraseKey stretches a passphrase into an AES-256 key with PBKDF2-SHA256.
func PassphraseKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLength, sha256.New)
}

// EncryptAESGCM encrypts plaintext with AES-256-GCM. Returns ciphertext and nonce separately.
func EncryptAESGCM(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}
	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// DecryptAESGCM decrypts AES-256-GCM ciphertext.
func DecryptAESGCM(ciphertext, nonce, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}

// Sealed is a passphrase-encrypted value, hex encoded for storage.
type Sealed struct {
	Ciphertext string `json:"encrypted"`
	Salt       string `json:"salt"`
	Nonce      string `json:"iv"`
}

// SealWithPassphrase encrypts plaintext under a key derived from passphrase and a fresh salt.
func SealWithPassphrase(plaintext []byte, passphrase string) (*Sealed, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	key := PassphraseKey(passphrase, salt)
	defer zeroBytes(key)

	ciphertext, nonce, err := EncryptAESGCM(plaintext, key)
	if err != nil {
		return nil, err
	}
	return &Sealed{
		Ciphertext: hex.EncodeToString(ciphertext),
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
	}, nil
}

// OpenWithPassphrase reverses SealWithPassphrase.
func OpenWithPassphrase(s *Sealed, passphrase string) ([]byte, error) {
	salt, err := hex.DecodeString(s.Salt)
	if err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}
	nonce, err := hex.DecodeString(s.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decoding nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(s.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	key := PassphraseKey(passphrase, salt)
	defer zeroBytes(key)
	return DecryptAESGCM(ciphertext, nonce, key)
}

// SHA256Hex returns the hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HMACHex returns the hex HMAC-SHA256 of data under key.
func HMACHex(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data) //nolint:errcheck
	return hex.EncodeToString(mac.Sum(nil))
}

// EqualHex compares two hex digests in constant time.
// Malformed input never matches.
func EqualHex(a, b string) bool {
	ab, err := hex.DecodeString(a)
	if err != nil {
		return false
	}
	bb, err := hex.DecodeString(b)
	if err != nil {
		return false
	}
	return hmac.Equal(ab, bb)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
