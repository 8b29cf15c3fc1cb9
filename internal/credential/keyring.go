package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/nhle/mailto/internal/model"
)

const serviceName = "mailto"

// sessionKey is the keyring entry holding the Webathena session.
const sessionKey = "webathena-session"

// ErrNoSession is returned when no session has been saved.
var ErrNoSession = errors.New("no saved session")

// Vault stores credentials in a keyring.
type Vault struct {
	ring keyring.Keyring
}

// NewVault wraps an already opened keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Open returns a Vault backed by the system keyring, falling back to an
// encrypted file under dir.
func Open(dir string) (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("mailto-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Vault{ring: ring}, nil
}

// Get retrieves a credential value by key.
func (v *Vault) Get(key string) (string, error) {
	item, err := v.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (v *Vault) Set(key string, value string) error {
	err := v.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "mailto " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key. Removing a missing key is not an
// error.
func (v *Vault) Delete(key string) error {
	err := v.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// SaveSession stores the raw Webathena session.
func (v *Vault) SaveSession(s *model.Session) error {
	return v.Set(sessionKey, string(s.Raw()))
}

// LoadSession restores a saved session. It returns ErrNoSession when none
// is stored.
func (v *Vault) LoadSession() (*model.Session, error) {
	raw, err := v.Get(sessionKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	s, err := model.ParseSession([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("restoring session: %w", err)
	}
	return s, nil
}

// ClearSession forgets the saved session.
func (v *Vault) ClearSession() error {
	return v.Delete(sessionKey)
}
