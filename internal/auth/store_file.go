package auth

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	// storeDirPerm is the permission mode for the token store directory.
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the token store file.
	// Tokens are bearer credentials; other users must not read them.
	storeFilePerm = fs.FileMode(0o600)
)

// scrypt parameters for deriving the secretbox key from a passphrase.
// Interactive-login cost: the store is opened a handful of times per
// process lifetime.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// sealedEnvelope is the on-disk shape of an encrypted token store.
// Salt and nonce are regenerated on every save.
type sealedEnvelope struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Box     []byte `json:"box"`
}

// FileStore persists the token record as a JSON file, used in
// containerized mode where no OS credential vault is available. When a
// passphrase is configured the record is sealed with NaCl secretbox
// under a scrypt-derived key; otherwise it is plaintext JSON with 0600
// permissions.
type FileStore struct {
	path       string
	passphrase string
}

// NewFileStore creates a file-backed token store at path. An empty
// passphrase disables encryption.
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

// Load reads the persisted record. A missing file maps to ErrNoToken.
func (s *FileStore) Load() (TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return TokenRecord{}, ErrNoToken
	}

	if err != nil {
		return TokenRecord{}, fmt.Errorf("reading token file: %w", err)
	}

	if s.passphrase != "" {
		data, err = s.unseal(data)
		if err != nil {
			return TokenRecord{}, err
		}
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return TokenRecord{}, fmt.Errorf("decoding token file: %w", err)
	}

	return rec, nil
}

// Save atomically replaces the persisted record: the file is written to
// a temp path in the same directory, fsynced, then renamed over the
// destination so a crash never leaves a truncated store.
func (s *FileStore) Save(rec TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding token record: %w", err)
	}

	if s.passphrase != "" {
		data, err = s.seal(data)
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, storeDirPerm); err != nil {
		return fmt.Errorf("creating token store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if err := tmp.Chmod(storeFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting token file permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing token file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing token file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}

	return nil
}

// Erase removes the token file. A missing file is not an error.
func (s *FileStore) Erase() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token file: %w", err)
	}

	return nil
}

// Path returns the store's file path. The token-file watcher uses it.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	key, err := s.deriveKey(salt)
	if err != nil {
		return nil, err
	}

	box := secretbox.Seal(nil, plaintext, &nonce, key)

	return json.Marshal(sealedEnvelope{
		Version: 1,
		Salt:    salt,
		Nonce:   nonce[:],
		Box:     box,
	})
}

func (s *FileStore) unseal(data []byte) ([]byte, error) {
	var env sealedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding sealed token file: %w", err)
	}

	if env.Version != 1 {
		return nil, fmt.Errorf("unsupported token file version %d", env.Version)
	}

	if len(env.Nonce) != 24 {
		return nil, fmt.Errorf("malformed sealed token file")
	}

	key, err := s.deriveKey(env.Salt)
	if err != nil {
		return nil, err
	}

	var nonce [24]byte
	copy(nonce[:], env.Nonce)

	plaintext, ok := secretbox.Open(nil, env.Box, &nonce, key)
	if !ok {
		return nil, fmt.Errorf("decrypting token file: wrong key or corrupted data")
	}

	return plaintext, nil
}

func (s *FileStore) deriveKey(salt []byte) (*[32]byte, error) {
	raw, err := scrypt.Key([]byte(s.passphrase), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("deriving store key: %w", err)
	}

	var key [32]byte
	copy(key[:], raw)

	return &key, nil
}
