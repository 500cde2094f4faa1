// Package secrets encrypts token material at rest. Ciphertexts are
// ChaCha20-Poly1305 AEAD blobs with a fresh random nonce per call, stored
// as base64 text columns.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/evanrusso/gmailvault/internal/errs"
)

// KeySize is the required AEAD key length in bytes.
const KeySize = chacha20poly1305.KeySize

// EncryptedBlob is an opaque ciphertext with its AEAD nonce.
type EncryptedBlob struct {
	Nonce      []byte
	Ciphertext []byte
}

// Encode serializes the blob as base64(nonce || ciphertext) for storage in
// a text column.
func (b EncryptedBlob) Encode() string {
	raw := make([]byte, 0, len(b.Nonce)+len(b.Ciphertext))
	raw = append(raw, b.Nonce...)
	raw = append(raw, b.Ciphertext...)
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeBlob parses a base64 blob produced by Encode.
func DecodeBlob(s string) (EncryptedBlob, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return EncryptedBlob{}, &errs.CryptoError{Op: "decode blob", Err: err}
	}
	if len(raw) < chacha20poly1305.NonceSize {
		return EncryptedBlob{}, &errs.CryptoError{
			Op: "decode blob", Err: fmt.Errorf("blob shorter than nonce size (%d bytes)", len(raw)),
		}
	}
	return EncryptedBlob{
		Nonce:      raw[:chacha20poly1305.NonceSize],
		Ciphertext: raw[chacha20poly1305.NonceSize:],
	}, nil
}

// Cipher performs authenticated encryption with a fixed key.
type Cipher struct {
	key []byte
}

// NewCipher returns a Cipher for the given 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, &errs.CryptoError{Op: "new cipher", Err: fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))}
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Cipher{key: k}, nil
}

// Encrypt seals plaintext under a fresh random nonce. Encrypting the same
// plaintext twice yields different ciphertexts.
func (c *Cipher) Encrypt(plaintext []byte) (EncryptedBlob, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return EncryptedBlob{}, &errs.CryptoError{Op: "encrypt", Err: err}
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedBlob{}, &errs.CryptoError{Op: "encrypt", Err: err}
	}
	return EncryptedBlob{
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Decrypt opens a blob. Fails with a CryptoError on tampered data or a
// wrong key; never returns garbage plaintext.
func (c *Cipher) Decrypt(blob EncryptedBlob) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, &errs.CryptoError{Op: "decrypt", Err: err}
	}
	if len(blob.Nonce) != chacha20poly1305.NonceSize {
		return nil, &errs.CryptoError{Op: "decrypt", Err: fmt.Errorf("nonce must be %d bytes, got %d", chacha20poly1305.NonceSize, len(blob.Nonce))}
	}
	plaintext, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		return nil, &errs.CryptoError{Op: "decrypt", Err: err}
	}
	return plaintext, nil
}

// EncryptString seals s and returns the encoded blob text.
func (c *Cipher) EncryptString(s string) (string, error) {
	blob, err := c.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return blob.Encode(), nil
}

// DecryptString opens an encoded blob text produced by EncryptString.
func (c *Cipher) DecryptString(s string) (string, error) {
	blob, err := DecodeBlob(s)
	if err != nil {
		return "", err
	}
	plaintext, err := c.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
