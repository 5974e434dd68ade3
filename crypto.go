package mailscheduler

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	cryptoKeySize   = 32
	cryptoNonceSize = 12
	cryptoTagSize   = 16
)

// CryptoConfig carries the key material for the password cipher. With both
// values empty the cipher is disabled and every operation reports the
// secret as unrecoverable instead of failing the caller.
type CryptoConfig struct {
	// Base64 encoded dedicated key, used directly when it decodes to at
	// least 32 bytes.
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// Long lived application secret, stretched into a key when no dedicated
	// key is configured.
	SecretKey string `env:"SECRET_KEY"`
}

// PasswordCipher provides reversible authenticated encryption for short
// secrets such as generated one time passwords. Blobs are the base64 of
// iv (12 bytes) || auth tag (16 bytes) || ciphertext.
type PasswordCipher struct {
	key []byte
}

func NewPasswordCipher(config CryptoConfig) *PasswordCipher {
	return &PasswordCipher{key: resolveCryptoKey(config)}
}

func (c *PasswordCipher) Enabled() bool {
	return len(c.key) == cryptoKeySize
}

// Encrypt returns the blob for plain, or false when the cipher is disabled
// or plain is empty.
func (c *PasswordCipher) Encrypt(plain string) (string, bool) {
	if plain == "" || !c.Enabled() {
		return "", false
	}

	aead, err := newAead(c.key)
	if err != nil {
		return "", false
	}

	iv := make([]byte, cryptoNonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", false
	}

	sealed := aead.Seal(nil, iv, []byte(plain), nil)

	// Seal appends the tag, the stored layout keeps it between iv and
	// ciphertext.
	ciphertext := sealed[:len(sealed)-cryptoTagSize]
	tag := sealed[len(sealed)-cryptoTagSize:]

	blob := make([]byte, 0, cryptoNonceSize+cryptoTagSize+len(ciphertext))
	blob = append(blob, iv...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), true
}

// Decrypt recovers the plaintext of a blob produced by Encrypt. It fails
// closed, a malformed, truncated or tampered blob yields false, never an
// error or a wrong plaintext.
func (c *PasswordCipher) Decrypt(blob string) (string, bool) {
	if blob == "" || !c.Enabled() {
		return "", false
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", false
	}

	if len(raw) < cryptoNonceSize+cryptoTagSize {
		return "", false
	}

	iv := raw[:cryptoNonceSize]
	tag := raw[cryptoNonceSize : cryptoNonceSize+cryptoTagSize]
	ciphertext := raw[cryptoNonceSize+cryptoTagSize:]

	aead, err := newAead(c.key)
	if err != nil {
		return "", false
	}

	sealed := make([]byte, 0, len(ciphertext)+cryptoTagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plain, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", false
	}

	return string(plain), true
}

func newAead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}

// resolveCryptoKey prefers the dedicated base64 key, truncated to 32
// bytes. A value that decodes shorter, or does not decode at all, is
// stretched with scrypt instead, and the bare secret key falls back to
// scrypt with a fixed application salt.
func resolveCryptoKey(config CryptoConfig) []byte {
	if config.EncryptionKey != "" {
		if key, err := base64.StdEncoding.DecodeString(config.EncryptionKey); err == nil && len(key) >= cryptoKeySize {
			return key[:cryptoKeySize]
		}

		return deriveKey(config.EncryptionKey, "salt")
	}

	if config.SecretKey != "" {
		return deriveKey(config.SecretKey, "encryption-salt")
	}

	return nil
}

func deriveKey(secret, salt string) []byte {
	key, err := scrypt.Key([]byte(secret), []byte(salt), 16384, 8, 1, cryptoKeySize)
	if err != nil {
		return nil
	}

	return key
}
