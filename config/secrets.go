package config

import (
	"errors"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/Nehilsa2/resume_automation/auth"
)

// KeyringService groups the app's secrets in the OS keychain.
const KeyringService = "resume_automation"

// Credentials returns the login of the site account. The identity comes
// from INDEED_EMAIL or the profile; the secret from INDEED_PASSWORD, then
// from the keyring entry of that identity. Missing parts stay empty so
// authentication reports them.
func (c Config) Credentials() auth.Credentials {
	identity := strings.TrimSpace(os.Getenv(EnvIdentity))
	if identity == "" {
		identity = strings.TrimSpace(c.Identity)
	}
	creds := auth.Credentials{Identity: identity, Secret: os.Getenv(EnvSecret)}
	if creds.Secret == "" && identity != "" {
		if secret, err := keyring.Get(KeyringService, identity); err == nil {
			creds.Secret = secret
		}
	}
	return creds
}

// SetSecret stores the secret of account in the OS keyring.
func SetSecret(account, secret string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(secret) == "" {
		return errors.New("secret is empty")
	}
	return keyring.Set(KeyringService, account, secret)
}

// DeleteSecret removes the secret of account. Deleting a missing entry is
// not an error.
func DeleteSecret(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	err := keyring.Delete(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
