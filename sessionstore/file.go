package sessionstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// FileStore persists one encrypted session file per origin under a base
// directory. The session private key is inside the record, so records are
// sealed with secretbox under a key derived from the configured secret.
// Writes go through a temp file and rename, making Replace atomic.
type FileStore struct {
	baseDir string
	secret  []byte
	log     *slog.Logger
}

const sessionFileSuffix = ".session"

// NewFileStore creates a file-backed store rooted at baseDir. secret is the
// encryption secret session records are sealed under; it must not be empty.
func NewFileStore(baseDir string, secret []byte, log *slog.Logger) (*FileStore, error) {
	if len(secret) == 0 {
		return nil, errors.New("file session store requires an encryption secret")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("could not create session directory: %w", err)
	}
	return &FileStore{baseDir: baseDir, secret: secret, log: log}, nil
}

// Get reads and decrypts the session for the origin.
func (s *FileStore) Get(ctx context.Context, origin interfaces.Origin) (*interfaces.LocalSession, error) {
	data, err := os.ReadFile(s.path(origin))
	if os.IsNotExist(err) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not read session file: %w", err)
	}

	plaintext, err := s.open(origin, data)
	if err != nil {
		return nil, err
	}

	var session interfaces.LocalSession
	if err := json.Unmarshal(plaintext, &session); err != nil {
		return nil, fmt.Errorf("could not parse session record: %w", err)
	}
	return &session, nil
}

// Replace seals and writes the session, then renames it into place. The
// rename is the commit point: a concurrent Get sees either the previous
// record or the new one, never a partial write.
func (s *FileStore) Replace(ctx context.Context, origin interfaces.Origin, session *interfaces.LocalSession) error {
	plaintext, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not encode session record: %w", err)
	}

	sealed, err := s.seal(origin, plaintext)
	if err != nil {
		return err
	}

	target := s.path(origin)
	tmp, err := os.CreateTemp(s.baseDir, "session-*")
	if err != nil {
		return fmt.Errorf("could not create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("could not write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("could not close session file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("could not commit session file: %w", err)
	}

	s.log.Debug("Session record replaced", slog.String("origin", string(origin)))
	return nil
}

// Clear removes the session file for the origin.
func (s *FileStore) Clear(ctx context.Context, origin interfaces.Origin) error {
	err := os.Remove(s.path(origin))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove session file: %w", err)
	}
	return nil
}

// path hashes the origin so arbitrary origin strings map to safe file names.
func (s *FileStore) path(origin interfaces.Origin) string {
	digest := sha256.Sum256([]byte(origin))
	return filepath.Join(s.baseDir, hex.EncodeToString(digest[:16])+sessionFileSuffix)
}

// key derives a per-origin sealing key from the store secret via HKDF-SHA256.
func (s *FileStore) key(origin interfaces.Origin) ([32]byte, error) {
	var key [32]byte
	reader := hkdf.New(sha256.New, s.secret, []byte("sessionstore-v1"), []byte(origin))
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return key, fmt.Errorf("could not derive sealing key: %w", err)
	}
	return key, nil
}

func (s *FileStore) seal(origin interfaces.Origin, plaintext []byte) ([]byte, error) {
	key, err := s.key(origin)
	if err != nil {
		return nil, err
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("could not generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &key), nil
}

func (s *FileStore) open(origin interfaces.Origin, sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, errors.New("session record truncated")
	}
	key, err := s.key(origin)
	if err != nil {
		return nil, err
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &key)
	if !ok {
		return nil, errors.New("could not decrypt session record")
	}
	return plaintext, nil
}
