package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"igparser/pkg/config"
	"igparser/pkg/errors"
)

func TestManagerStoreResolveDelete(t *testing.T) {
	manager, store := newMemoryManager(config.CredentialSourceFile)

	err := manager.Store(config.CredentialSourceFile, &Credentials{Username: "parser_bot", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.count())

	creds, err := manager.Resolve(config.CredentialSourceFile, "parser_bot")
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", creds.Password)
	assert.False(t, creds.LastModified.IsZero())

	require.NoError(t, manager.Delete(config.CredentialSourceFile, "parser_bot"))
	assert.Equal(t, 0, store.count())

	_, err = manager.Resolve(config.CredentialSourceFile, "parser_bot")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeStartupConfig, errors.TypeOf(err))
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := newMemoryManager(config.CredentialSourceFile)

	assert.Error(t, manager.Store(config.CredentialSourceFile, &Credentials{Password: "x"}))
	assert.Error(t, manager.Store(config.CredentialSourceFile, &Credentials{Username: "x"}))
	assert.ErrorIs(t, manager.Store(config.CredentialSourceKeyring, &Credentials{Username: "x", Password: "y"}), ErrStoreUnavailable)
}

func TestResolveWithoutUsernamePicksFirst(t *testing.T) {
	manager, _ := newMemoryManager(config.CredentialSourceFile)
	require.NoError(t, manager.Store(config.CredentialSourceFile, &Credentials{Username: "zeta", Password: "pw-zeta"}))
	require.NoError(t, manager.Store(config.CredentialSourceFile, &Credentials{Username: "alpha", Password: "pw-alpha"}))

	creds, err := manager.Resolve(config.CredentialSourceFile, "")
	require.NoError(t, err)
	assert.Equal(t, "alpha", creds.Username)
}

func TestResolveEmptyStore(t *testing.T) {
	manager, _ := newMemoryManager(config.CredentialSourceFile)

	_, err := manager.Resolve(config.CredentialSourceFile, "")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(errors.TypeOf(err)))
}

func TestResolveStoreFailure(t *testing.T) {
	manager, store := newMemoryManager(config.CredentialSourceFile)
	store.retrieveErr = fmt.Errorf("disk on fire")

	_, err := manager.Resolve(config.CredentialSourceFile, "someone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore(config.InstagramConfig{Username: "env_user", Password: "env_pass"})

	creds, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "env_user", creds.Username)
	assert.Equal(t, "env_pass", creds.Password)

	_, err = store.Retrieve("other")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	assert.ErrorIs(t, store.Store(creds), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("env_user"), ErrStoreUnavailable)

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	empty := NewEnvironmentStore(config.InstagramConfig{Username: "only_user"})
	assert.False(t, empty.Exists(""))
	list, err = empty.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestVault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "credentials.enc")

	vault := NewVault(path, "test_passphrase_123")
	require.NoError(t, vault.Store(&Credentials{Username: "one", Password: "pw-one"}))
	require.NoError(t, vault.Store(&Credentials{Username: "two", Password: "pw-two"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "pw-one", "passwords are not stored in clear text")
	assert.Contains(t, string(raw), `"one"`, "usernames stay readable")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened := NewVault(path, "test_passphrase_123")
	creds, err := reopened.Retrieve("two")
	require.NoError(t, err)
	assert.Equal(t, "pw-two", creds.Password)
	assert.False(t, creds.LastModified.IsZero())
	assert.True(t, reopened.Exists("one"))

	require.NoError(t, reopened.Store(&Credentials{Username: "two", Password: "pw-two-new"}))
	creds, err = vault.Retrieve("two")
	require.NoError(t, err)
	assert.Equal(t, "pw-two-new", creds.Password)

	_, err = reopened.Retrieve("three")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, reopened.Delete("one"))
	assert.ErrorIs(t, reopened.Delete("one"), ErrCredentialsNotFound)
	require.NoError(t, reopened.Delete("two"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file removed with the last login")
}

func TestVaultWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	require.NoError(t, NewVault(path, "right").Store(&Credentials{Username: "one", Password: "pw-one"}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	wrong := NewVault(path, "wrong")
	_, err = wrong.Retrieve("one")
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	assert.ErrorIs(t, wrong.Store(&Credentials{Username: "two", Password: "pw-two"}), ErrWrongPassphrase)
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a wrong passphrase never rewrites the file")
}

func TestVaultWithoutPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	locked := NewVault(path, "")
	assert.ErrorIs(t, locked.Store(&Credentials{Username: "one", Password: "pw-one"}), ErrPassphraseRequired)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, NewVault(path, "pp").Store(&Credentials{Username: "one", Password: "pw-one"}))

	list, err := locked.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "one", list[0].Username)
	assert.Empty(t, list[0].Password)

	_, err = locked.Retrieve("one")
	assert.ErrorIs(t, err, ErrPassphraseRequired)
	require.NoError(t, locked.Delete("one"))
}

func TestVaultEntryBoundToUsername(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	vault := NewVault(path, "pp")
	require.NoError(t, vault.Store(&Credentials{Username: "alice", Password: "pw-alice"}))
	require.NoError(t, vault.Store(&Credentials{Username: "bob", Password: "pw-bob"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var f vaultFile
	require.NoError(t, json.Unmarshal(raw, &f))
	f.Logins["bob"] = f.Logins["alice"]
	raw, err = json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0600))

	_, err = vault.Retrieve("bob")
	assert.Error(t, err, "a sealed password moved to another username does not open")
}

func TestResolveFromVault(t *testing.T) {
	keyring.MockInit()
	path := filepath.Join(t.TempDir(), "credentials.enc")

	manager, err := NewManager(config.InstagramConfig{CredentialsFile: path, Passphrase: "pp"})
	require.NoError(t, err)
	require.NoError(t, manager.Store(config.CredentialSourceFile, &Credentials{Username: "parser_bot", Password: "s3cret-pass"}))

	creds, err := manager.Resolve(config.CredentialSourceFile, "")
	require.NoError(t, err)
	assert.Equal(t, "parser_bot", creds.Username)
	assert.Equal(t, "s3cret-pass", creds.Password)

	locked, err := NewManager(config.InstagramConfig{CredentialsFile: path})
	require.NoError(t, err)
	_, err = locked.Resolve(config.CredentialSourceFile, "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeStartupConfig, errors.TypeOf(err))
	assert.ErrorIs(t, err, ErrPassphraseRequired)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(&Credentials{Username: "kr_user", Password: "kr_pass"}))
	require.NoError(t, store.Store(&Credentials{Username: "kr_other", Password: "kr_pass2"}))
	assert.True(t, store.Exists("kr_user"))

	creds, err := store.Retrieve("kr_user")
	require.NoError(t, err)
	assert.Equal(t, "kr_pass", creds.Password)

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.Delete("kr_user"))
	assert.ErrorIs(t, store.Delete("kr_user"), ErrCredentialsNotFound)

	list, err = store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "kr_other", list[0].Username)
}

func TestNewManagerSources(t *testing.T) {
	keyring.MockInit()

	manager, err := NewManager(config.InstagramConfig{
		Username:        "env_user",
		Password:        "env_pass",
		CredentialsFile: filepath.Join(t.TempDir(), "credentials.enc"),
		Passphrase:      "pp",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"env", "file", "keyring"}, manager.Sources())

	creds, err := manager.Resolve(config.CredentialSourceEnv, "")
	require.NoError(t, err)
	assert.Equal(t, "env_user", creds.Username)
}

func TestSanitizeCredentials(t *testing.T) {
	creds := &Credentials{Username: "user", Password: "a-very-long-password"}

	sanitized := SanitizeCredentials(creds)
	assert.Equal(t, "user", sanitized.Username)
	assert.Equal(t, "a-...rd", sanitized.Password)
	assert.Equal(t, "********", SanitizeCredentials(&Credentials{Password: "short"}).Password)
	assert.Nil(t, SanitizeCredentials(nil))
}
