package auth

import "sync"

// memoryStore is an in-memory CredentialStore with a failure switch on Retrieve
type memoryStore struct {
	mu          sync.Mutex
	logins      map[string]Credentials
	retrieveErr error
}

func newMemoryManager(source string) (*Manager, *memoryStore) {
	store := &memoryStore{logins: map[string]Credentials{}}
	return NewManagerWithStores(map[string]CredentialStore{source: store}), store
}

func (m *memoryStore) Store(creds *Credentials) error {
	if creds == nil || creds.Username == "" {
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[creds.Username] = *creds
	return nil
}

func (m *memoryStore) Retrieve(username string) (*Credentials, error) {
	if m.retrieveErr != nil {
		return nil, m.retrieveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	creds, ok := m.logins[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &creds, nil
}

func (m *memoryStore) List() ([]*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*Credentials, 0, len(m.logins))
	for _, creds := range m.logins {
		c := creds
		result = append(result, &c)
	}
	return result, nil
}

func (m *memoryStore) Delete(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logins[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.logins, username)
	return nil
}

func (m *memoryStore) Exists(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.logins[username]
	return ok
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logins)
}
