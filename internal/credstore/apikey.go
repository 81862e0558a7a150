package credstore

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

// apiKeyService is the keyring service name under which API-key
// profiles store their key. Unlike OAuth credentials, API keys have no
// external CLI to interoperate with, so the cross-platform keyring
// abstraction is used directly.
const apiKeyService = "credkeeper-api-key"

// SetAPIKey stores the API key for an account in the OS keyring.
func SetAPIKey(accountID, key string) error {
	if accountID == "" {
		return fmt.Errorf("empty account id")
	}
	if key == "" {
		return fmt.Errorf("empty API key")
	}
	if err := validateServiceName(accountID); err != nil {
		return err
	}
	return keyring.Set(apiKeyService, accountID, key)
}

// GetAPIKey returns the stored API key for an account. A missing key
// is reported as empty, not as an error.
func GetAPIKey(accountID string) (string, error) {
	if err := validateServiceName(accountID); err != nil {
		return "", err
	}
	key, err := keyring.Get(apiKeyService, accountID)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return key, nil
}

// DeleteAPIKey removes the stored API key for an account. Deleting a
// missing key is a no-op.
func DeleteAPIKey(accountID string) error {
	if err := validateServiceName(accountID); err != nil {
		return err
	}
	if err := keyring.Delete(apiKeyService, accountID); err != nil && err != keyring.ErrNotFound {
		return err
	}
	return nil
}
