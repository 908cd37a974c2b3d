package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service the portal password is stored under
const KeyringService = "tennisbot"

var (
	// ErrNotFound is returned when no password is stored for the account
	ErrNotFound = errors.New("password not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring cannot be used
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// PasswordFromKeyring reads the portal password stored for email
func PasswordFromKeyring(email string) (string, error) {
	pw, err := keyring.Get(KeyringService, email)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return pw, nil
}

// SetPassword stores the portal password for email
func SetPassword(email, password string) error {
	if email == "" || password == "" {
		return errors.New("email and password must not be empty")
	}
	if err := keyring.Set(KeyringService, email, password); err != nil {
		return fmt.Errorf("store password in keyring: %w", err)
	}
	return nil
}

// DeletePassword removes the stored password for email
func DeletePassword(email string) error {
	if err := keyring.Delete(KeyringService, email); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete password from keyring: %w", err)
	}
	return nil
}
