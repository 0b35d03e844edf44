package credential

import (
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "mailtriage"

// RefPrefix marks a config value that names a keyring entry instead of
// holding the secret itself.
const RefPrefix = "keyring:"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailtriage/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailtriage-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Label: serviceName + " " + key,
		Data:  []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Ref returns the config value that points at key.
func Ref(key string) string { return RefPrefix + key }

// IsRef reports whether value is a keyring reference.
func IsRef(value string) bool { return strings.HasPrefix(value, RefPrefix) }

// Resolve returns value unchanged unless it is a keyring reference, in
// which case the referenced secret is looked up.
func Resolve(value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	key := strings.TrimSpace(strings.TrimPrefix(value, RefPrefix))
	if key == "" {
		return "", fmt.Errorf("empty keyring reference %q", value)
	}
	return Get(key)
}
