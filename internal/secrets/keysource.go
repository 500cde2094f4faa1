package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"

	"github.com/evanrusso/gmailvault/internal/errs"
)

// KeySource supplies the AEAD key for a Cipher. The backend is chosen at
// construction time: the OS keyring for normal operation, or a
// password-derived key for rotation flows.
type KeySource interface {
	Key() ([]byte, error)
}

const (
	keyringService = "gmailvault"
	keyringUser    = "cipher-key"
)

// KeyringSource loads the process-wide key from the OS keyring (macOS
// Keychain, Windows Credential Manager, or Linux Secret Service),
// generating and persisting one on first use.
type KeyringSource struct {
	Service string
	User    string
}

// NewKeyringSource returns a KeyringSource using the default service and
// key identifiers.
func NewKeyringSource() *KeyringSource {
	return &KeyringSource{Service: keyringService, User: keyringUser}
}

// Key returns the stored key, generating a fresh one if none exists yet.
func (s *KeyringSource) Key() ([]byte, error) {
	encoded, err := keyring.Get(s.Service, s.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return s.generate()
	}
	if err != nil {
		return nil, &errs.CryptoError{Op: "load key from keyring", Err: err}
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &errs.CryptoError{Op: "decode keyring key", Err: err}
	}
	if len(key) != KeySize {
		return nil, &errs.CryptoError{Op: "load key from keyring", Err: fmt.Errorf("stored key has wrong length %d", len(key))}
	}
	return key, nil
}

func (s *KeyringSource) generate() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, &errs.CryptoError{Op: "generate key", Err: err}
	}
	if err := keyring.Set(s.Service, s.User, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, &errs.CryptoError{Op: "persist key to keyring", Err: err}
	}
	return key, nil
}

// DerivedKeySource derives the key from a password with Argon2id. Used only
// for key-rotation flows where the key must be reproducible from user input.
type DerivedKeySource struct {
	password []byte
	salt     []byte
}

// NewDerivedKeySource returns a source deriving the key from password and a
// caller-persisted salt.
func NewDerivedKeySource(password string, salt []byte) *DerivedKeySource {
	return &DerivedKeySource{password: []byte(password), salt: salt}
}

// Key derives the AEAD key. The parameters follow the Argon2id memory-hard
// recommendations (64 MiB, 4 lanes).
func (s *DerivedKeySource) Key() ([]byte, error) {
	if len(s.salt) == 0 {
		return nil, &errs.CryptoError{Op: "derive key", Err: errors.New("empty salt")}
	}
	return argon2.IDKey(s.password, s.salt, 1, 64*1024, 4, KeySize), nil
}
