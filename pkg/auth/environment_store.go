package auth

import (
	"time"

	"igparser/pkg/config"
)

// EnvironmentStore serves the INSTAGRAM_USERNAME/INSTAGRAM_PASSWORD pair
// the configuration loaded. It is read only.
type EnvironmentStore struct {
	username string
	password string
}

// NewEnvironmentStore creates a store over the configured login
func NewEnvironmentStore(cfg config.InstagramConfig) *EnvironmentStore {
	return &EnvironmentStore{username: cfg.Username, password: cfg.Password}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(creds *Credentials) error {
	return ErrStoreUnavailable
}

// Retrieve returns the configured login. Any username other than the
// configured one is not found.
func (e *EnvironmentStore) Retrieve(username string) (*Credentials, error) {
	if e.username == "" || e.password == "" {
		return nil, ErrCredentialsNotFound
	}
	if username != "" && username != e.username {
		return nil, ErrCredentialsNotFound
	}

	return &Credentials{
		Username:     e.username,
		Password:     e.password,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if the login is configured
func (e *EnvironmentStore) List() ([]*Credentials, error) {
	creds, err := e.Retrieve("")
	if err != nil {
		return []*Credentials{}, nil
	}
	return []*Credentials{creds}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}
