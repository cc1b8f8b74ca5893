// Package security provides secure credential handling for fastcp.
package security

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name used for keyring entries.
	KeyringService = "fastcp"
)

// KeyringStore provides OS keyring integration for credential storage.
// It uses the system keyring (macOS Keychain, Linux Secret Service, Windows Credential Manager)
// to cache SSH key passphrases and remote-host passwords across transfer invocations, so a
// user running several fastcp transfers against the same host isn't re-prompted every time.
//
// When the OS keyring is unavailable (headless CI, a container with no
// Secret Service), credentials fall back to an in-process SecureCache keyed
// by the same key string, bounded by DefaultMemCacheTTL: a transfer and a
// same-process retry within the TTL skip the re-prompt, but nothing
// survives past the process exiting.
type KeyringStore struct {
	enabled bool
	mem     map[string]*SecureCache
	mu      sync.RWMutex
}

// NewKeyringStore creates a new keyring store.
// If the system keyring is not available, the store falls back to an
// in-process cache for the lifetime of this process.
func NewKeyringStore() *KeyringStore {
	ks := &KeyringStore{
		enabled: true,
		mem:     make(map[string]*SecureCache),
	}

	// Test if keyring is available by trying a dummy operation
	testKey := "__fastcp_test__"
	err := keyring.Set(KeyringService, testKey, "test")
	if err != nil {
		slog.Debug("keyring not available, using memory-only storage",
			slog.String("error", err.Error()),
		)
		ks.enabled = false
		return ks
	}

	// Clean up test entry
	_ = keyring.Delete(KeyringService, testKey)

	slog.Debug("keyring storage enabled")
	return ks
}

// IsEnabled returns true if the OS keyring is available and enabled. The
// store still caches credentials in-process when this is false.
func (ks *KeyringStore) IsEnabled() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.enabled
}

// SetEnabled allows enabling/disabling keyring usage.
func (ks *KeyringStore) SetEnabled(enabled bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.enabled = enabled
}

func (ks *KeyringStore) memSet(key string, value []byte) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.mem == nil {
		ks.mem = make(map[string]*SecureCache)
	}
	ks.mem[key] = NewSecureCache(value, DefaultMemCacheTTL)
}

func (ks *KeyringStore) memGet(key string) []byte {
	ks.mu.RLock()
	cache, ok := ks.mem[key]
	ks.mu.RUnlock()
	if !ok {
		return nil
	}
	return cache.Get()
}

func (ks *KeyringStore) memDelete(key string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if cache, ok := ks.mem[key]; ok {
		cache.Clear()
		delete(ks.mem, key)
	}
}

// StoreSSHPassphrase stores an SSH key passphrase in the keyring, or in the
// in-process fallback cache when the OS keyring is unavailable.
func (ks *KeyringStore) StoreSSHPassphrase(keyPath string, passphrase []byte) error {
	key := fmt.Sprintf(keySSHPassphraseFmt, keyPath)
	if !ks.IsEnabled() {
		ks.memSet(key, passphrase)
		return nil
	}

	// Base64 encode to safely store binary data
	encoded := base64.StdEncoding.EncodeToString(passphrase)

	if err := keyring.Set(KeyringService, key, encoded); err != nil {
		return fmt.Errorf("failed to store SSH passphrase: %w", err)
	}

	slog.Debug("stored SSH passphrase in keyring",
		slog.String("key_path", keyPath),
	)
	return nil
}

// GetSSHPassphrase retrieves an SSH key passphrase from the keyring, or
// from the in-process fallback cache when the OS keyring is unavailable.
func (ks *KeyringStore) GetSSHPassphrase(keyPath string) ([]byte, error) {
	key := fmt.Sprintf(keySSHPassphraseFmt, keyPath)
	if !ks.IsEnabled() {
		return ks.memGet(key), nil
	}

	encoded, err := keyring.Get(KeyringService, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil // Not found is not an error
		}
		return nil, fmt.Errorf("failed to get SSH passphrase: %w", err)
	}

	passphrase, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode SSH passphrase: %w", err)
	}

	return passphrase, nil
}

// DeleteSSHPassphrase removes an SSH key passphrase from the keyring, or
// from the in-process fallback cache when the OS keyring is unavailable.
func (ks *KeyringStore) DeleteSSHPassphrase(keyPath string) error {
	key := fmt.Sprintf(keySSHPassphraseFmt, keyPath)
	if !ks.IsEnabled() {
		ks.memDelete(key)
		return nil
	}

	if err := keyring.Delete(KeyringService, key); err != nil {
		if err == keyring.ErrNotFound {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete SSH passphrase: %w", err)
	}

	return nil
}

// StoreHostPassword stores a remote host's SSH password in the keyring, for
// endpoints that authenticate with password or keyboard-interactive auth
// instead of a key file.
func (ks *KeyringStore) StoreHostPassword(host, user string, password []byte) error {
	key := fmt.Sprintf(keyHostFmt, user, host)
	if !ks.IsEnabled() {
		ks.memSet(key, password)
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString(password)

	if err := keyring.Set(KeyringService, key, encoded); err != nil {
		return fmt.Errorf("failed to store host password: %w", err)
	}

	slog.Debug("stored host password in keyring",
		slog.String("user", user),
		slog.String("host", host),
	)
	return nil
}

// GetHostPassword retrieves a remote host's SSH password from the keyring,
// or from the in-process fallback cache when the OS keyring is unavailable.
func (ks *KeyringStore) GetHostPassword(host, user string) ([]byte, error) {
	key := fmt.Sprintf(keyHostFmt, user, host)
	if !ks.IsEnabled() {
		return ks.memGet(key), nil
	}

	encoded, err := keyring.Get(KeyringService, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get host password: %w", err)
	}

	password, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode host password: %w", err)
	}

	return password, nil
}

// DeleteHostPassword removes a remote host's SSH password from the keyring.
func (ks *KeyringStore) DeleteHostPassword(host, user string) error {
	if !ks.IsEnabled() {
		return fmt.Errorf("keyring not available")
	}

	key := fmt.Sprintf(keyHostFmt, user, host)
	if err := keyring.Delete(KeyringService, key); err != nil {
		if err == keyring.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete host password: %w", err)
	}

	return nil
}

// ClearAll removes all fastcp entries from the keyring.
// Note: This is a best-effort operation as we can't enumerate keyring entries.
func (ks *KeyringStore) ClearAll(hosts []string, users []string, keyPaths []string) {
	if !ks.IsEnabled() {
		return
	}

	for _, host := range hosts {
		for _, user := range users {
			_ = ks.DeleteHostPassword(host, user)
		}
	}

	for _, keyPath := range keyPaths {
		_ = ks.DeleteSSHPassphrase(keyPath)
	}

	slog.Debug("cleared keyring entries")
}
