package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"igparser/pkg/config"
	igerrors "igparser/pkg/errors"
)

// Credentials are the Instagram login the parser signs in with
type Credentials struct {
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a given account
	Store(creds *Credentials) error

	// Retrieve gets credentials for a specific username
	Retrieve(username string) (*Credentials, error)

	// List returns all stored accounts
	List() ([]*Credentials, error)

	// Delete removes credentials for a specific username
	Delete(username string) error

	// Exists checks if credentials exist for a username
	Exists(username string) bool
}

// Manager maps each credential source to its store
type Manager struct {
	stores map[string]CredentialStore
}

// NewManager creates the stores for every source. The env source is always
// present; keyring is added when the system keychain answers. The file
// source needs IGPARSER_PASSPHRASE to store or unseal a login.
func NewManager(cfg config.InstagramConfig) (*Manager, error) {
	stores := map[string]CredentialStore{
		config.CredentialSourceEnv: NewEnvironmentStore(cfg),
	}

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores[config.CredentialSourceKeyring] = keyringStore
	}

	path := cfg.CredentialsFile
	if path == "" {
		configDir, err := getConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		path = filepath.Join(configDir, "credentials.enc")
	}

	stores[config.CredentialSourceFile] = NewVault(path, cfg.Passphrase)

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores builds a Manager from explicit stores
func NewManagerWithStores(stores map[string]CredentialStore) *Manager {
	return &Manager{stores: stores}
}

func (m *Manager) store(source string) (CredentialStore, error) {
	store, ok := m.stores[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreUnavailable, source)
	}
	return store, nil
}

// Store saves credentials in source
func (m *Manager) Store(source string, creds *Credentials) error {
	if creds == nil || creds.Username == "" {
		return errors.New("username is required")
	}
	if creds.Password == "" {
		return errors.New("password is required")
	}

	store, err := m.store(source)
	if err != nil {
		return err
	}

	creds.LastModified = time.Now()
	if err := store.Store(creds); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

// Resolve returns the login for source. With an empty username the only
// (or first by name) stored account is used.
func (m *Manager) Resolve(source, username string) (*Credentials, error) {
	const op = "resolve_credentials"

	store, err := m.store(source)
	if err != nil {
		return nil, igerrors.Wrap(igerrors.ErrorTypeStartupConfig, op, err)
	}

	if username == "" {
		accounts, err := m.List(source)
		if err != nil {
			return nil, igerrors.Wrap(igerrors.ErrorTypeStartupConfig, op, err)
		}
		if len(accounts) == 0 {
			return nil, igerrors.Wrap(igerrors.ErrorTypeStartupConfig, op,
				fmt.Errorf("%w in %s store", ErrCredentialsNotFound, source))
		}
		username = accounts[0].Username
	}

	creds, err := store.Retrieve(username)
	if err != nil {
		return nil, igerrors.Wrap(igerrors.ErrorTypeStartupConfig, op,
			fmt.Errorf("%s store, user %s: %w", source, username, err))
	}
	if creds.Password == "" {
		return nil, igerrors.Wrap(igerrors.ErrorTypeStartupConfig, op,
			fmt.Errorf("%w: empty password for %s", ErrInvalidCredentials, username))
	}
	return creds, nil
}

// List returns the accounts held by source, sorted by username
func (m *Manager) List(source string) ([]*Credentials, error) {
	store, err := m.store(source)
	if err != nil {
		return nil, err
	}

	accounts, err := store.List()
	if err != nil {
		return nil, err
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Username < accounts[j].Username
	})
	return accounts, nil
}

// Delete removes username from source
func (m *Manager) Delete(source, username string) error {
	store, err := m.store(source)
	if err != nil {
		return err
	}
	if err := store.Delete(username); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

// Sources returns the configured credential sources, sorted
func (m *Manager) Sources() []string {
	sources := make([]string, 0, len(m.stores))
	for s := range m.stores {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "igparser")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "igparser")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "igparser")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "igparser")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeCredentials returns a copy with the password masked
func SanitizeCredentials(creds *Credentials) *Credentials {
	if creds == nil {
		return nil
	}

	return &Credentials{
		Username:     creds.Username,
		Password:     maskString(creds.Password),
		LastModified: creds.LastModified,
	}
}

// maskString masks all but the first 2 and last 2 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:2] + "..." + s[len(s)-2:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
