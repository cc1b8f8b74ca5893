package ssh

import "github.com/acolita/fastcp/internal/security"

// ResolveCachedAuth fills in cfg.KeyPassphrase and cfg.Password from the OS
// keyring when the caller didn't supply them explicitly, so a user isn't
// re-prompted for the same encrypted key or password on every invocation
// against the same host.
func ResolveCachedAuth(cfg AuthConfig, store *security.KeyringStore) AuthConfig {
	if store == nil {
		return cfg
	}

	if cfg.KeyPassphrase == "" && cfg.KeyPath != "" {
		if pass, err := store.GetSSHPassphrase(cfg.KeyPath); err == nil {
			cfg.KeyPassphrase = string(pass)
		}
	}

	if cfg.Password == "" && cfg.Host != "" {
		if pass, err := store.GetHostPassword(cfg.Host, cfg.User); err == nil {
			cfg.Password = string(pass)
		}
	}

	return cfg
}

// CacheAuth stores a successfully used key passphrase or host password in
// the keyring so the next transfer against the same target doesn't need it
// supplied again.
func CacheAuth(cfg AuthConfig, store *security.KeyringStore) {
	if store == nil {
		return
	}
	if cfg.KeyPath != "" && cfg.KeyPassphrase != "" {
		_ = store.StoreSSHPassphrase(cfg.KeyPath, []byte(cfg.KeyPassphrase))
	}
	if cfg.Host != "" && cfg.Password != "" {
		_ = store.StoreHostPassword(cfg.Host, cfg.User, []byte(cfg.Password))
	}
}
