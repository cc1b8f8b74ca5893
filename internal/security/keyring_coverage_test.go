package security

import (
	"errors"
	"sync"
	"testing"

	"github.com/zalando/go-keyring"
)

// setupMockKeyring initializes the go-keyring mock provider and returns
// a KeyringStore with enabled=true. This bypasses the real OS keyring.
func setupMockKeyring(t *testing.T) *KeyringStore {
	t.Helper()
	keyring.MockInit()
	return &KeyringStore{enabled: true}
}

// setupMockKeyringWithError initializes the go-keyring mock provider that
// returns the given error on all operations, and returns a KeyringStore
// with enabled=true.
func setupMockKeyringWithError(t *testing.T, err error) *KeyringStore {
	t.Helper()
	keyring.MockInitWithError(err)
	return &KeyringStore{enabled: true}
}

// --- NewKeyringStore tests ---

func TestNewKeyringStore_WithMockKeyring(t *testing.T) {
	keyring.MockInit()
	ks := NewKeyringStore()
	if ks == nil {
		t.Fatal("NewKeyringStore returned nil")
	}
	if !ks.IsEnabled() {
		t.Error("expected keyring to be enabled with mock provider")
	}
}

func TestNewKeyringStore_WithFailingKeyring(t *testing.T) {
	keyring.MockInitWithError(errors.New("mock keyring failure"))
	ks := NewKeyringStore()
	if ks == nil {
		t.Fatal("NewKeyringStore returned nil")
	}
	if ks.IsEnabled() {
		t.Error("expected keyring to be disabled when keyring returns error")
	}
}

// --- IsEnabled / SetEnabled tests ---

func TestKeyringStore_IsEnabled_Default(t *testing.T) {
	ks := &KeyringStore{enabled: false}
	if ks.IsEnabled() {
		t.Error("expected IsEnabled to be false")
	}
}

func TestKeyringStore_SetEnabled_Toggle(t *testing.T) {
	ks := &KeyringStore{enabled: false}
	ks.SetEnabled(true)
	if !ks.IsEnabled() {
		t.Error("expected IsEnabled to be true after SetEnabled(true)")
	}
	ks.SetEnabled(false)
	if ks.IsEnabled() {
		t.Error("expected IsEnabled to be false after SetEnabled(false)")
	}
}

func TestKeyringStore_IsEnabled_ConcurrentAccess(t *testing.T) {
	ks := &KeyringStore{enabled: true}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ks.SetEnabled(true)
		}()
		go func() {
			defer wg.Done()
			_ = ks.IsEnabled()
		}()
	}
	wg.Wait()
}

// --- SSH Passphrase tests ---

func TestKeyringStore_StoreAndGetSSHPassphrase(t *testing.T) {
	ks := setupMockKeyring(t)
	keyPath := "/home/user/.ssh/id_ed25519"
	passphrase := []byte("my-secret-passphrase")

	if err := ks.StoreSSHPassphrase(keyPath, passphrase); err != nil {
		t.Fatalf("StoreSSHPassphrase failed: %v", err)
	}

	got, err := ks.GetSSHPassphrase(keyPath)
	if err != nil {
		t.Fatalf("GetSSHPassphrase failed: %v", err)
	}
	if string(got) != string(passphrase) {
		t.Errorf("got %q, want %q", got, passphrase)
	}
}

func TestKeyringStore_GetSSHPassphrase_NotFound(t *testing.T) {
	ks := setupMockKeyring(t)

	got, err := ks.GetSSHPassphrase("/nonexistent/key")
	if err != nil {
		t.Fatalf("expected no error for missing key, got: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing key, got %q", got)
	}
}

func TestKeyringStore_DeleteSSHPassphrase(t *testing.T) {
	ks := setupMockKeyring(t)
	keyPath := "/home/user/.ssh/id_rsa"
	passphrase := []byte("to-be-deleted")

	if err := ks.StoreSSHPassphrase(keyPath, passphrase); err != nil {
		t.Fatalf("StoreSSHPassphrase failed: %v", err)
	}

	if err := ks.DeleteSSHPassphrase(keyPath); err != nil {
		t.Fatalf("DeleteSSHPassphrase failed: %v", err)
	}

	got, err := ks.GetSSHPassphrase(keyPath)
	if err != nil {
		t.Fatalf("GetSSHPassphrase after delete failed: %v", err)
	}
	if got != nil {
		t.Error("expected nil after deletion")
	}
}

func TestKeyringStore_DeleteSSHPassphrase_NotFound(t *testing.T) {
	ks := setupMockKeyring(t)

	err := ks.DeleteSSHPassphrase("/nonexistent/key")
	if err != nil {
		t.Errorf("DeleteSSHPassphrase for missing key should return nil, got: %v", err)
	}
}

func TestKeyringStore_StoreSSHPassphrase_DisabledUsesMemFallback(t *testing.T) {
	ks := &KeyringStore{enabled: false}

	if err := ks.StoreSSHPassphrase("/test", []byte("test")); err != nil {
		t.Fatalf("StoreSSHPassphrase: %v", err)
	}
	got, err := ks.GetSSHPassphrase("/test")
	if err != nil {
		t.Fatalf("GetSSHPassphrase: %v", err)
	}
	if string(got) != "test" {
		t.Errorf("got %q, want %q", got, "test")
	}
}

func TestKeyringStore_GetSSHPassphrase_DisabledMissing(t *testing.T) {
	ks := &KeyringStore{enabled: false}

	got, err := ks.GetSSHPassphrase("/test")
	if err != nil {
		t.Errorf("expected no error for missing key in mem fallback, got %v", err)
	}
	if got != nil {
		t.Error("expected nil result for key never stored")
	}
}

func TestKeyringStore_DeleteSSHPassphrase_DisabledUsesMemFallback(t *testing.T) {
	ks := &KeyringStore{enabled: false}
	_ = ks.StoreSSHPassphrase("/test", []byte("test"))

	if err := ks.DeleteSSHPassphrase("/test"); err != nil {
		t.Errorf("DeleteSSHPassphrase: %v", err)
	}
	if got, _ := ks.GetSSHPassphrase("/test"); got != nil {
		t.Error("expected nil after delete")
	}
}

func TestKeyringStore_StoreSSHPassphrase_KeyringError(t *testing.T) {
	mockErr := errors.New("keyring store failure")
	ks := setupMockKeyringWithError(t, mockErr)

	err := ks.StoreSSHPassphrase("/test", []byte("test"))
	if err == nil {
		t.Fatal("expected error from failing keyring")
	}
	if !errors.Is(err, mockErr) {
		t.Errorf("expected wrapped error containing %q, got %q", mockErr, err)
	}
}

func TestKeyringStore_GetSSHPassphrase_KeyringError(t *testing.T) {
	mockErr := errors.New("keyring get failure")
	ks := setupMockKeyringWithError(t, mockErr)

	got, err := ks.GetSSHPassphrase("/test")
	if err == nil {
		t.Fatal("expected error from failing keyring")
	}
	if got != nil {
		t.Error("expected nil result on error")
	}
}

func TestKeyringStore_DeleteSSHPassphrase_KeyringError(t *testing.T) {
	mockErr := errors.New("keyring delete failure")
	ks := setupMockKeyringWithError(t, mockErr)

	err := ks.DeleteSSHPassphrase("/test")
	if err == nil {
		t.Fatal("expected error from failing keyring")
	}
}

// --- Host Password tests ---

func TestKeyringStore_StoreAndGetHostPassword(t *testing.T) {
	ks := setupMockKeyring(t)
	host := "prod.server.com"
	user := "deploy"
	password := []byte("host-secret-123")

	if err := ks.StoreHostPassword(host, user, password); err != nil {
		t.Fatalf("StoreHostPassword failed: %v", err)
	}

	got, err := ks.GetHostPassword(host, user)
	if err != nil {
		t.Fatalf("GetHostPassword failed: %v", err)
	}
	if string(got) != string(password) {
		t.Errorf("got %q, want %q", got, password)
	}
}

func TestKeyringStore_GetHostPassword_NotFound(t *testing.T) {
	ks := setupMockKeyring(t)

	got, err := ks.GetHostPassword("unknown-host", "unknown-user")
	if err != nil {
		t.Fatalf("expected no error for missing password, got: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing password, got %q", got)
	}
}

func TestKeyringStore_DeleteHostPassword(t *testing.T) {
	ks := setupMockKeyring(t)
	host := "test.host"
	user := "admin"
	password := []byte("delete-me")

	if err := ks.StoreHostPassword(host, user, password); err != nil {
		t.Fatalf("StoreHostPassword failed: %v", err)
	}

	if err := ks.DeleteHostPassword(host, user); err != nil {
		t.Fatalf("DeleteHostPassword failed: %v", err)
	}

	got, err := ks.GetHostPassword(host, user)
	if err != nil {
		t.Fatalf("GetHostPassword after delete failed: %v", err)
	}
	if got != nil {
		t.Error("expected nil after deletion")
	}
}

func TestKeyringStore_DeleteHostPassword_NotFound(t *testing.T) {
	ks := setupMockKeyring(t)

	err := ks.DeleteHostPassword("no-host", "no-user")
	if err != nil {
		t.Errorf("DeleteHostPassword for missing key should return nil, got: %v", err)
	}
}

func TestKeyringStore_StoreHostPassword_DisabledUsesMemFallback(t *testing.T) {
	ks := &KeyringStore{enabled: false}

	if err := ks.StoreHostPassword("host", "user", []byte("pass")); err != nil {
		t.Fatalf("StoreHostPassword: %v", err)
	}
	got, err := ks.GetHostPassword("host", "user")
	if err != nil {
		t.Fatalf("GetHostPassword: %v", err)
	}
	if string(got) != "pass" {
		t.Errorf("got %q, want %q", got, "pass")
	}
}

func TestKeyringStore_GetHostPassword_DisabledMissing(t *testing.T) {
	ks := &KeyringStore{enabled: false}

	got, err := ks.GetHostPassword("host", "user")
	if err != nil {
		t.Errorf("expected no error for missing key in mem fallback, got %v", err)
	}
	if got != nil {
		t.Error("expected nil result for key never stored")
	}
}

func TestKeyringStore_DeleteHostPassword_DisabledUsesMemFallback(t *testing.T) {
	ks := &KeyringStore{enabled: false}
	_ = ks.StoreHostPassword("host", "user", []byte("pass"))

	if err := ks.DeleteHostPassword("host", "user"); err != nil {
		t.Errorf("DeleteHostPassword: %v", err)
	}
	if got, _ := ks.GetHostPassword("host", "user"); got != nil {
		t.Error("expected nil after delete")
	}
}

func TestKeyringStore_StoreHostPassword_KeyringError(t *testing.T) {
	mockErr := errors.New("keyring host store failure")
	ks := setupMockKeyringWithError(t, mockErr)

	err := ks.StoreHostPassword("host", "user", []byte("pass"))
	if err == nil {
		t.Fatal("expected error from failing keyring")
	}
}

func TestKeyringStore_GetHostPassword_KeyringError(t *testing.T) {
	mockErr := errors.New("keyring host get failure")
	ks := setupMockKeyringWithError(t, mockErr)

	got, err := ks.GetHostPassword("host", "user")
	if err == nil {
		t.Fatal("expected error from failing keyring")
	}
	if got != nil {
		t.Error("expected nil on error")
	}
}

func TestKeyringStore_DeleteHostPassword_KeyringError(t *testing.T) {
	mockErr := errors.New("keyring host delete failure")
	ks := setupMockKeyringWithError(t, mockErr)

	err := ks.DeleteHostPassword("host", "user")
	if err == nil {
		t.Fatal("expected error from failing keyring")
	}
}

// --- ClearAll tests ---

func TestKeyringStore_ClearAll(t *testing.T) {
	ks := setupMockKeyring(t)

	// Populate various entries
	hosts := []string{"host1.com", "host2.com"}
	users := []string{"user1", "user2"}
	keyPaths := []string{"/keys/id_rsa", "/keys/id_ed25519"}

	for _, h := range hosts {
		for _, u := range users {
			if err := ks.StoreHostPassword(h, u, []byte("host-"+u+"@"+h)); err != nil {
				t.Fatalf("StoreHostPassword(%s, %s) failed: %v", h, u, err)
			}
		}
	}
	for _, kp := range keyPaths {
		if err := ks.StoreSSHPassphrase(kp, []byte("passphrase-"+kp)); err != nil {
			t.Fatalf("StoreSSHPassphrase(%s) failed: %v", kp, err)
		}
	}

	// ClearAll should not panic
	ks.ClearAll(hosts, users, keyPaths)

	// Verify all entries are removed
	for _, h := range hosts {
		for _, u := range users {
			got, err := ks.GetHostPassword(h, u)
			if err != nil {
				t.Errorf("GetHostPassword(%s, %s) error: %v", h, u, err)
			}
			if got != nil {
				t.Errorf("expected nil for host password %s@%s after ClearAll", u, h)
			}
		}
	}
	for _, kp := range keyPaths {
		got, err := ks.GetSSHPassphrase(kp)
		if err != nil {
			t.Errorf("GetSSHPassphrase(%s) error: %v", kp, err)
		}
		if got != nil {
			t.Errorf("expected nil for passphrase %s after ClearAll", kp)
		}
	}
}

func TestKeyringStore_ClearAll_Disabled(t *testing.T) {
	ks := &KeyringStore{enabled: false}

	// Should not panic even when disabled
	ks.ClearAll([]string{"host"}, []string{"user"}, []string{"/key"})
}

func TestKeyringStore_ClearAll_EmptyLists(t *testing.T) {
	ks := setupMockKeyring(t)

	// Should not panic with empty lists
	ks.ClearAll(nil, nil, nil)
	ks.ClearAll([]string{}, []string{}, []string{})
}

// --- Cross-credential isolation tests ---

func TestKeyringStore_CredentialIsolation(t *testing.T) {
	ks := setupMockKeyring(t)

	// Store a host password and an SSH passphrase under related names
	host := "shared.host.com"
	user := "shared-user"

	hostPass := []byte("host-password")
	keyPath := "/keys/shared-user-key"
	passphrase := []byte("key-passphrase")

	if err := ks.StoreHostPassword(host, user, hostPass); err != nil {
		t.Fatalf("StoreHostPassword failed: %v", err)
	}
	if err := ks.StoreSSHPassphrase(keyPath, passphrase); err != nil {
		t.Fatalf("StoreSSHPassphrase failed: %v", err)
	}

	gotHost, err := ks.GetHostPassword(host, user)
	if err != nil {
		t.Fatalf("GetHostPassword failed: %v", err)
	}
	gotPass, err := ks.GetSSHPassphrase(keyPath)
	if err != nil {
		t.Fatalf("GetSSHPassphrase failed: %v", err)
	}

	if string(gotHost) != string(hostPass) {
		t.Errorf("host password: got %q, want %q", gotHost, hostPass)
	}
	if string(gotPass) != string(passphrase) {
		t.Errorf("ssh passphrase: got %q, want %q", gotPass, passphrase)
	}

	// Deleting one should not affect the other
	if err := ks.DeleteHostPassword(host, user); err != nil {
		t.Fatalf("DeleteHostPassword failed: %v", err)
	}

	gotPass, err = ks.GetSSHPassphrase(keyPath)
	if err != nil {
		t.Fatalf("GetSSHPassphrase after host delete failed: %v", err)
	}
	if string(gotPass) != string(passphrase) {
		t.Errorf("ssh passphrase should survive host password deletion: got %q, want %q", gotPass, passphrase)
	}
}

// --- Binary data / special characters tests ---

func TestKeyringStore_SSHPassphrase_BinaryData(t *testing.T) {
	ks := setupMockKeyring(t)

	// Binary data with null bytes and high-value bytes
	binaryPass := []byte{0x00, 0x01, 0xFF, 0xFE, 0x80, 0x7F, 0x00, 0xAB}
	keyPath := "/keys/binary-key"

	if err := ks.StoreSSHPassphrase(keyPath, binaryPass); err != nil {
		t.Fatalf("StoreSSHPassphrase with binary data failed: %v", err)
	}

	got, err := ks.GetSSHPassphrase(keyPath)
	if err != nil {
		t.Fatalf("GetSSHPassphrase with binary data failed: %v", err)
	}

	if len(got) != len(binaryPass) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(binaryPass))
	}
	for i := range binaryPass {
		if got[i] != binaryPass[i] {
			t.Errorf("byte %d: got 0x%02X, want 0x%02X", i, got[i], binaryPass[i])
		}
	}
}

func TestKeyringStore_SSHPassphrase_EmptyData(t *testing.T) {
	ks := setupMockKeyring(t)

	emptyPass := []byte{}
	keyPath := "/keys/empty-key"

	if err := ks.StoreSSHPassphrase(keyPath, emptyPass); err != nil {
		t.Fatalf("StoreSSHPassphrase with empty data failed: %v", err)
	}

	got, err := ks.GetSSHPassphrase(keyPath)
	if err != nil {
		t.Fatalf("GetSSHPassphrase with empty data failed: %v", err)
	}

	if len(got) != 0 {
		t.Errorf("expected empty slice, got %v", got)
	}
}

// --- Overwrite tests ---

func TestKeyringStore_OverwriteSSHPassphrase(t *testing.T) {
	ks := setupMockKeyring(t)
	keyPath := "/keys/overwrite-key"

	if err := ks.StoreSSHPassphrase(keyPath, []byte("old-passphrase")); err != nil {
		t.Fatalf("StoreSSHPassphrase (old) failed: %v", err)
	}
	if err := ks.StoreSSHPassphrase(keyPath, []byte("new-passphrase")); err != nil {
		t.Fatalf("StoreSSHPassphrase (new) failed: %v", err)
	}

	got, err := ks.GetSSHPassphrase(keyPath)
	if err != nil {
		t.Fatalf("GetSSHPassphrase failed: %v", err)
	}
	if string(got) != "new-passphrase" {
		t.Errorf("got %q, want %q", got, "new-passphrase")
	}
}

func TestKeyringStore_OverwriteHostPassword(t *testing.T) {
	ks := setupMockKeyring(t)
	host := "host.com"
	user := "admin"

	if err := ks.StoreHostPassword(host, user, []byte("old-pass")); err != nil {
		t.Fatalf("StoreHostPassword (old) failed: %v", err)
	}
	if err := ks.StoreHostPassword(host, user, []byte("new-pass")); err != nil {
		t.Fatalf("StoreHostPassword (new) failed: %v", err)
	}

	got, err := ks.GetHostPassword(host, user)
	if err != nil {
		t.Fatalf("GetHostPassword failed: %v", err)
	}
	if string(got) != "new-pass" {
		t.Errorf("got %q, want %q", got, "new-pass")
	}
}

// --- Multiple distinct keys tests ---

func TestKeyringStore_MultipleDistinctSSHPassphrases(t *testing.T) {
	ks := setupMockKeyring(t)

	keys := map[string]string{
		"/keys/key1": "passphrase-1",
		"/keys/key2": "passphrase-2",
		"/keys/key3": "passphrase-3",
	}

	for kp, pp := range keys {
		if err := ks.StoreSSHPassphrase(kp, []byte(pp)); err != nil {
			t.Fatalf("StoreSSHPassphrase(%s) failed: %v", kp, err)
		}
	}

	for kp, pp := range keys {
		got, err := ks.GetSSHPassphrase(kp)
		if err != nil {
			t.Fatalf("GetSSHPassphrase(%s) failed: %v", kp, err)
		}
		if string(got) != pp {
			t.Errorf("key %s: got %q, want %q", kp, got, pp)
		}
	}
}

func TestKeyringStore_MultipleDistinctHostPasswords(t *testing.T) {
	ks := setupMockKeyring(t)

	entries := []struct {
		host, user, pass string
	}{
		{"host1.com", "root", "pass1"},
		{"host1.com", "deploy", "pass2"},
		{"host2.com", "root", "pass3"},
	}

	for _, e := range entries {
		if err := ks.StoreHostPassword(e.host, e.user, []byte(e.pass)); err != nil {
			t.Fatalf("StoreHostPassword(%s, %s) failed: %v", e.host, e.user, err)
		}
	}

	for _, e := range entries {
		got, err := ks.GetHostPassword(e.host, e.user)
		if err != nil {
			t.Fatalf("GetHostPassword(%s, %s) failed: %v", e.host, e.user, err)
		}
		if string(got) != e.pass {
			t.Errorf("%s@%s: got %q, want %q", e.user, e.host, got, e.pass)
		}
	}
}

// --- KeyringService constant test ---

func TestKeyringServiceConstant(t *testing.T) {
	if KeyringService != "fastcp" {
		t.Errorf("KeyringService = %q, want %q", KeyringService, "fastcp")
	}
}

// --- Base64 decode failure tests ---
// These tests inject invalid base64 directly into the mock keyring
// to trigger the decode error path in GetSSHPassphrase/GetHostPassword.

func TestKeyringStore_GetSSHPassphrase_InvalidBase64(t *testing.T) {
	keyring.MockInit()
	ks := &KeyringStore{enabled: true}

	// Directly set invalid base64 in the keyring using the same key format
	keyPath := "/keys/corrupt"
	key := "ssh-passphrase:" + keyPath
	if err := keyring.Set(KeyringService, key, "!!!not-valid-base64!!!"); err != nil {
		t.Fatalf("keyring.Set failed: %v", err)
	}

	got, err := ks.GetSSHPassphrase(keyPath)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if got != nil {
		t.Error("expected nil result on decode error")
	}
}

func TestKeyringStore_GetHostPassword_InvalidBase64(t *testing.T) {
	keyring.MockInit()
	ks := &KeyringStore{enabled: true}

	host := "host.com"
	user := "admin"
	key := "host:" + user + "@" + host
	if err := keyring.Set(KeyringService, key, "<<>>invalid<<>>"); err != nil {
		t.Fatalf("keyring.Set failed: %v", err)
	}

	got, err := ks.GetHostPassword(host, user)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if got != nil {
		t.Error("expected nil result on decode error")
	}
}

func TestKeyringStore_ClearAll_PartialEntries(t *testing.T) {
	ks := setupMockKeyring(t)

	// Only store a few entries, but ClearAll with broader lists
	if err := ks.StoreHostPassword("host1", "user1", []byte("pass")); err != nil {
		t.Fatalf("StoreHostPassword failed: %v", err)
	}

	// ClearAll with hosts/users that don't have entries should not error
	ks.ClearAll(
		[]string{"host1", "host2", "host3"},
		[]string{"user1", "user2"},
		[]string{"/key1", "/key2"},
	)

	// The entry we did store should be gone
	got, err := ks.GetHostPassword("host1", "user1")
	if err != nil {
		t.Fatalf("GetHostPassword after ClearAll failed: %v", err)
	}
	if got != nil {
		t.Error("expected nil after ClearAll")
	}
}
