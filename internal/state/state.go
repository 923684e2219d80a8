package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/campusctl/internal/session"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.campusctl/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket      = []byte("app")
	credentialsKey = []byte("credentials")
	savedAtKey     = []byte("credentials_saved_at")
	saltKey        = []byte("salt")
)

// ErrSealed is returned when the stored credentials were sealed with a
// passphrase but the state was opened without one.
var ErrSealed = errors.New("stored credentials are sealed; a passphrase is required")

// State wraps a bbolt database holding the credential pair. It
// implements session.Store.
type State struct {
	db     *bolt.DB
	sealer *sealer
}

var _ session.Store = (*State)(nil)

// Options configures LoadAt.
type Options struct {
	// Passphrase seals the credential pair at rest when non-empty.
	Passphrase string
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist.
func LoadAt(path string, opts Options) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	var salt []byte

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(appBucket)
		if err != nil {
			return err
		}

		if opts.Passphrase == "" {
			return nil
		}

		if existing := b.Get(saltKey); existing != nil {
			salt = append([]byte(nil), existing...)
			return nil
		}

		salt, err = newSalt()
		if err != nil {
			return err
		}

		return b.Put(saltKey, salt)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	s := &State{db: db}

	if opts.Passphrase != "" {
		s.sealer, err = newSealer(opts.Passphrase, salt)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("deriving state key: %w", err)
		}
	}

	return s, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// LoadCredentials returns the stored pair, or an empty pair when none
// is stored.
func (s *State) LoadCredentials() (session.Credentials, error) {
	var raw []byte

	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(appBucket).Get(credentialsKey); v != nil {
			raw = append([]byte(nil), v...)
		}

		return nil
	})

	if raw == nil {
		return session.Credentials{}, nil
	}

	data, err := s.decode(raw)
	if err != nil {
		return session.Credentials{}, err
	}

	var creds session.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return session.Credentials{}, fmt.Errorf("decoding stored credentials: %w", err)
	}

	return creds, nil
}

// SaveCredentials persists the pair, sealing it when a passphrase was
// configured.
func (s *State) SaveCredentials(creds session.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}

	if s.sealer != nil {
		data, err = s.sealer.seal(data)
		if err != nil {
			return fmt.Errorf("sealing credentials: %w", err)
		}
	}

	now := []byte(time.Now().UTC().Format(time.RFC3339))

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(appBucket)
		if err := b.Put(credentialsKey, data); err != nil {
			return err
		}

		return b.Put(savedAtKey, now)
	})
}

// ClearCredentials removes the stored pair.
func (s *State) ClearCredentials() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(appBucket)
		if err := b.Delete(credentialsKey); err != nil {
			return err
		}

		return b.Delete(savedAtKey)
	})
}

// CredentialsSavedAt returns when the pair was last written, or the
// zero time when nothing is stored.
func (s *State) CredentialsSavedAt() time.Time {
	var saved time.Time

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(savedAtKey)
		if v == nil {
			return nil
		}

		t, err := time.Parse(time.RFC3339, string(v))
		if err == nil {
			saved = t
		}

		return nil
	})

	return saved
}

func (s *State) decode(raw []byte) ([]byte, error) {
	if !isSealed(raw) {
		return raw, nil
	}

	if s.sealer == nil {
		return nil, ErrSealed
	}

	return s.sealer.open(raw)
}
