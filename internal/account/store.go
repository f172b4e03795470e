package account

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/outpostctl/outpost/internal/filestore"
)

// WorldId identifies one game world/language pair (spec.md §3: "{ number,
// language_code }. Immutable.").
type WorldId struct {
	Number       int    `json:"number"`
	LanguageCode string `json:"language_code"`
}

// String renders the canonical "s{number}-{language}" world label used in
// the game-server hostname pattern (spec.md §6).
func (w WorldId) String() string {
	return fmt.Sprintf("s%d-%s", w.Number, w.LanguageCode)
}

// ProxyConfig is the optional outbound proxy configured for an account.
// Its URL is recorded on the account's session; the session's HTTP client
// does not route requests through it.
type ProxyConfig struct {
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Account is one saved set of game-server login credentials plus the
// cached tokens/worlds the LoginStateMachine's fast-path and world
// selection phases consume (spec.md §3). Password is only ever populated
// in memory after Store.Unlock; on disk it lives only inside the
// envelope-encrypted blob.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"` // spec.md's "email"
	World    string `json:"world"`
	Password string `json:"password"` // spec.md's "secret"

	KnownWorlds       []WorldId        `json:"known_worlds,omitempty"`
	DefaultWorld      *WorldId         `json:"default_world,omitempty"`
	CachedAuthToken   string           `json:"cached_auth_token,omitempty"`
	CachedDeviceToken string           `json:"cached_device_token,omitempty"`
	Proxy             *ProxyConfig     `json:"proxy,omitempty"`
	NotificationPrefs *json.RawMessage `json:"notification_prefs,omitempty"`
}

// fileFormat is the on-disk shape of the accounts file: a random salt in
// the clear, base64-encoded (salts aren't secret), plus the
// envelope-encrypted account list.
type fileFormat struct {
	Salt     string `json:"salt"`
	Accounts string `json:"accounts,omitempty"`
}

const accountsInfo = "outpost-accounts-v1"

// Store is the encrypted-at-rest catalog of accounts the agent can log
// into. It is unlocked once per process with an operator passphrase and
// held decrypted in memory thereafter.
type Store struct {
	mu        sync.Mutex
	path      string
	salt      []byte
	masterKey []byte
	accounts  []Account
}

// New creates a Store bound to an accounts file without unlocking it.
func New(path string) *Store {
	return &Store{path: path}
}

// Unlock loads the accounts file (creating a fresh one if absent) and
// decrypts it with a key derived from passphrase.
func (s *Store) Unlock(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, existed, err := filestore.ReadOrDefault(s.path, nil)
	if err != nil {
		return err
	}

	if !existed {
		salt, err := NewSalt()
		if err != nil {
			return err
		}
		s.salt = salt
		s.masterKey = DeriveMasterKey(passphrase, salt)
		s.accounts = nil
		return nil
	}

	var ff fileFormat
	if err := json.Unmarshal(raw, &ff); err != nil {
		return fmt.Errorf("parse accounts file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(ff.Salt)
	if err != nil {
		return fmt.Errorf("decode accounts salt: %w", err)
	}
	key := DeriveMasterKey(passphrase, salt)

	accounts, err := decryptAccounts(key, salt, ff.Accounts)
	if err != nil {
		return fmt.Errorf("decrypt accounts (wrong passphrase?): %w", err)
	}

	s.salt = salt
	s.masterKey = key
	s.accounts = accounts
	return nil
}

func decryptAccounts(key, salt []byte, encoded string) ([]Account, error) {
	if encoded == "" {
		return nil, nil
	}
	plaintext, err := DecryptEnvelope(key, salt, accountsInfo, []byte(encoded))
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if err := json.Unmarshal(plaintext, &accounts); err != nil {
		return nil, fmt.Errorf("unmarshal accounts: %w", err)
	}
	return accounts, nil
}

// List returns a copy of the unlocked accounts.
func (s *Store) List() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// Get returns the account with the given ID, or false if none matches.
func (s *Store) Get(id string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// Put inserts or replaces an account by ID and persists the store.
func (s *Store) Put(a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, existing := range s.accounts {
		if existing.ID == a.ID {
			s.accounts[i] = a
			replaced = true
			break
		}
	}
	if !replaced {
		s.accounts = append(s.accounts, a)
	}
	return s.persistLocked()
}

// Remove deletes an account by ID and persists the store.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.accounts[:0]
	for _, a := range s.accounts {
		if a.ID != id {
			filtered = append(filtered, a)
		}
	}
	s.accounts = filtered
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	plaintext, err := json.Marshal(s.accounts)
	if err != nil {
		return fmt.Errorf("marshal accounts: %w", err)
	}

	encrypted, err := EncryptEnvelope(s.masterKey, s.salt, accountsInfo, plaintext)
	if err != nil {
		return fmt.Errorf("encrypt accounts: %w", err)
	}

	ff := fileFormat{Salt: base64.StdEncoding.EncodeToString(s.salt), Accounts: string(encrypted)}
	raw, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal file: %w", err)
	}

	return filestore.WriteAtomic(s.path, raw, 0o600)
}
