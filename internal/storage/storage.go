// Package storage persists uploaded content in a content-addressed,
// two-level sharded directory tree. Objects are written at most once and
// never rewritten or deleted.
package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// HashLen is the length of a hex-encoded content hash.
	HashLen = 40
	// ShardLen is the number of hash characters naming the shard directory.
	ShardLen = 2

	dirMode  os.FileMode = 0o750
	fileMode os.FileMode = 0o640
)

var (
	// ErrStorageIO wraps any filesystem failure while persisting an object.
	ErrStorageIO = errors.New("storage i/o failure")
	// ErrInvalidPath is returned for paths that are not shard/rest pairs or
	// that escape the data root.
	ErrInvalidPath = errors.New("invalid storage path")
)

var (
	shardPattern = regexp.MustCompile(`^[0-9a-f]{2}$`)
	restPattern  = regexp.MustCompile(`^[0-9a-f]{38}$`)
)

// Object describes the outcome of an ingest.
type Object struct {
	Hash string
	// Path is the slash-separated storage path relative to the data root,
	// "<shard>/<rest>".
	Path  string
	Size  int64
	IsNew bool
}

// Store is a content-addressed file store rooted at a data directory.
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating dir if needed.
func New(dir string) (*Store, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(root, dirMode); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the absolute data directory.
func (s *Store) Root() string {
	return s.root
}

// Hash returns the hex content hash of data.
func Hash(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// PathFor returns the storage path "<shard>/<rest>" for a hash. The hash is
// lowercased; it must be HashLen hex characters.
func PathFor(hash string) (string, error) {
	hash = strings.ToLower(hash)
	if len(hash) != HashLen {
		return "", fmt.Errorf("%w: hash %q has length %d", ErrInvalidPath, hash, len(hash))
	}
	shard, rest := hash[:ShardLen], hash[ShardLen:]
	if !shardPattern.MatchString(shard) || !restPattern.MatchString(rest) {
		return "", fmt.Errorf("%w: hash %q is not hex", ErrInvalidPath, hash)
	}
	return shard + "/" + rest, nil
}

// Abs resolves a storage path to an absolute filename inside the data root.
func (s *Store) Abs(storagePath string) (string, error) {
	shard, rest, ok := strings.Cut(storagePath, "/")
	if !ok || !shardPattern.MatchString(shard) || !restPattern.MatchString(rest) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, storagePath)
	}
	full := filepath.Join(s.root, shard, rest)

	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q escapes data root", ErrInvalidPath, storagePath)
	}
	return full, nil
}

// Exists reports whether an object is stored at storagePath.
func (s *Store) Exists(storagePath string) (bool, error) {
	full, err := s.Abs(storagePath)
	if err != nil {
		return false, err
	}
	return fileExists(full)
}

// Ingest hashes data and stores it unless an object with the same hash is
// already present. Concurrent ingests of identical bytes may both write;
// each rename installs the same content, so either result is correct.
func (s *Store) Ingest(ctx context.Context, data []byte) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := Hash(data)
	storagePath, err := PathFor(hash)
	if err != nil {
		return nil, err
	}
	obj := &Object{Hash: hash, Path: storagePath, Size: int64(len(data))}

	shardDir := filepath.Join(s.root, hash[:ShardLen])
	if err := os.Mkdir(shardDir, dirMode); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: create shard %q: %v", ErrStorageIO, shardDir, err)
	}

	target := filepath.Join(shardDir, hash[ShardLen:])
	exists, err := fileExists(target)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %q: %v", ErrStorageIO, target, err)
	}
	if exists {
		return obj, nil
	}

	if err := writeAtomic(shardDir, target, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	obj.IsNew = true
	return obj, nil
}

// writeAtomic writes data to a temp file in dir and renames it onto target,
// so readers never observe a partially written object.
func writeAtomic(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		_ = tmp.Close()
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write %q: %w", tmpName, err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		return fmt.Errorf("chmod %q: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("rename onto %q: %w", target, err)
	}
	cleanup = false
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
