// Package fs persists cache snapshots on the local filesystem. Writes go to a
// temporary file that is renamed into place, so a reader never observes a
// partially written snapshot. A sidecar file carries the sha256 of the payload
// and is verified on load.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"obscore/internal/errs"
)

const checksumSuffix = ".sha256"

// Store implements cache.SnapshotStore rooted at a directory.
type Store struct {
	root string
}

// New returns a filesystem snapshot store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./snapshots"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory snapshots are written under.
func (s *Store) Root() string { return s.root }

// sanitizeKey forbids traversal and absolute keys.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

func (s *Store) pathFor(key string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Save writes payload under key, replacing any previous snapshot.
func (s *Store) Save(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dataPath, err := s.pathFor(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dataPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	sum := sha256.Sum256(payload)
	if err := writeAtomic(dir, dataPath+checksumSuffix, []byte(hex.EncodeToString(sum[:]))); err != nil {
		return err
	}
	return writeAtomic(dir, dataPath, payload)
}

func writeAtomic(dir, path string, content []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads the snapshot stored under key and verifies its checksum.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dataPath, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("snapshot %s: %w", key, errs.ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, err
	}
	want, err := os.ReadFile(dataPath + checksumSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return payload, nil
	}
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(payload)
	if got := hex.EncodeToString(sum[:]); got != strings.TrimSpace(string(want)) {
		return nil, fmt.Errorf("snapshot %s: checksum mismatch", key)
	}
	return payload, nil
}
