package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultVersion    = 2
	vaultSaltSize   = 16
	vaultKeySize    = 32
	vaultIterations = 210000

	// vaultCheckLabel is sealed once per file to detect a wrong passphrase
	// before anything is written
	vaultCheckLabel = "igparser-vault"
)

var (
	ErrPassphraseRequired = errors.New("IGPARSER_PASSPHRASE is required for the file credential source")
	ErrWrongPassphrase    = errors.New("passphrase does not open the credentials file")
)

// Vault is the file credential source. Usernames are kept readable so
// logins can be listed and removed without the passphrase; every password
// is sealed on its own with AES-GCM and bound to its username.
type Vault struct {
	path       string
	passphrase string

	mu      sync.Mutex
	key     []byte
	keySalt string
}

type sealed struct {
	Nonce []byte `json:"nonce"`
	Data  []byte `json:"data"`
}

type vaultEntry struct {
	Password  sealed    `json:"password"`
	UpdatedAt time.Time `json:"updated_at"`
}

type vaultFile struct {
	Version    int                   `json:"version"`
	Salt       []byte                `json:"salt"`
	Iterations int                   `json:"iterations"`
	Check      sealed                `json:"check"`
	Logins     map[string]vaultEntry `json:"logins"`
}

// NewVault returns the vault stored at path. Nothing is read until the
// first call.
func NewVault(path, passphrase string) *Vault {
	return &Vault{path: path, passphrase: passphrase}
}

func (v *Vault) Store(creds *Credentials) error {
	if creds == nil || creds.Username == "" {
		return ErrInvalidCredentials
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := v.read()
	if errors.Is(err, os.ErrNotExist) {
		f, err = v.create()
	}
	if err != nil {
		return err
	}

	gcm, err := v.unlock(f)
	if err != nil {
		return err
	}

	updated := creds.LastModified
	if updated.IsZero() {
		updated = time.Now()
	}
	secret, err := seal(gcm, []byte(creds.Password), []byte(creds.Username))
	if err != nil {
		return err
	}
	f.Logins[creds.Username] = vaultEntry{Password: secret, UpdatedAt: updated.UTC()}

	return v.write(f)
}

func (v *Vault) Retrieve(username string) (*Credentials, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := v.read()
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, err
	}

	entry, ok := f.Logins[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}

	gcm, err := v.unlock(f)
	if err != nil {
		return nil, err
	}
	password, err := unseal(gcm, entry.Password, []byte(username))
	if err != nil {
		return nil, fmt.Errorf("login %s cannot be unsealed: %w", username, err)
	}

	return &Credentials{
		Username:     username,
		Password:     string(password),
		LastModified: entry.UpdatedAt,
	}, nil
}

// List reports the stored logins without their passwords
func (v *Vault) List() ([]*Credentials, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := v.read()
	if errors.Is(err, os.ErrNotExist) {
		return []*Credentials{}, nil
	}
	if err != nil {
		return nil, err
	}

	result := make([]*Credentials, 0, len(f.Logins))
	for name, entry := range f.Logins {
		result = append(result, &Credentials{Username: name, LastModified: entry.UpdatedAt})
	}
	return result, nil
}

// Delete removes a login. The file goes away with the last one.
func (v *Vault) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := v.read()
	if errors.Is(err, os.ErrNotExist) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return err
	}
	if _, ok := f.Logins[username]; !ok {
		return ErrCredentialsNotFound
	}

	delete(f.Logins, username)
	if len(f.Logins) == 0 {
		return os.Remove(v.path)
	}
	return v.write(f)
}

func (v *Vault) Exists(username string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := v.read()
	if err != nil {
		return false
	}
	_, ok := f.Logins[username]
	return ok
}

func (v *Vault) read() (*vaultFile, error) {
	raw, err := os.ReadFile(v.path)
	if err != nil {
		return nil, err
	}

	var f vaultFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("credentials file %s is corrupt: %w", v.path, err)
	}
	if f.Version != vaultVersion {
		return nil, fmt.Errorf("credentials file %s has unsupported version %d", v.path, f.Version)
	}
	if f.Logins == nil {
		f.Logins = map[string]vaultEntry{}
	}
	return &f, nil
}

func (v *Vault) create() (*vaultFile, error) {
	if v.passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	salt := make([]byte, vaultSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	f := &vaultFile{
		Version:    vaultVersion,
		Salt:       salt,
		Iterations: vaultIterations,
		Logins:     map[string]vaultEntry{},
	}

	gcm, err := v.aead(f)
	if err != nil {
		return nil, err
	}
	if f.Check, err = seal(gcm, []byte(vaultCheckLabel), nil); err != nil {
		return nil, err
	}
	return f, nil
}

// unlock returns the cipher for f after checking the passphrase against
// the file's check value
func (v *Vault) unlock(f *vaultFile) (cipher.AEAD, error) {
	if v.passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	gcm, err := v.aead(f)
	if err != nil {
		return nil, err
	}
	label, err := unseal(gcm, f.Check, nil)
	if err != nil || string(label) != vaultCheckLabel {
		return nil, ErrWrongPassphrase
	}
	return gcm, nil
}

// aead derives the key for the file's salt, reusing the last one
func (v *Vault) aead(f *vaultFile) (cipher.AEAD, error) {
	if v.key == nil || v.keySalt != string(f.Salt) {
		v.key = pbkdf2.Key([]byte(v.passphrase), f.Salt, f.Iterations, vaultKeySize, sha256.New)
		v.keySalt = string(f.Salt)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// write replaces the file through a temp file in the same directory
func (v *Vault) write(f *vaultFile) error {
	dir := filepath.Dir(v.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return os.Rename(tmp.Name(), v.path)
}

func seal(gcm cipher.AEAD, plaintext, additional []byte) (sealed, error) {
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return sealed{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return sealed{Nonce: nonce, Data: gcm.Seal(nil, nonce, plaintext, additional)}, nil
}

func unseal(gcm cipher.AEAD, s sealed, additional []byte) ([]byte, error) {
	if len(s.Nonce) != gcm.NonceSize() {
		return nil, errors.New("malformed nonce")
	}
	return gcm.Open(nil, s.Nonce, s.Data, additional)
}
