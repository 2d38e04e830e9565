// Package userpath maps a user identifier to the {data, index} backup file
// pair for that user, creating the pair atomically on first use. The
// user→path mapping itself is a go.etcd.io/bbolt database, whose
// View/Update transactions back the fetch/create/commit operations below.
package userpath

import (
	"crypto/sha1" //nolint:gosec // used only to bucket users into subdirectories, not for integrity
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var usersBucket = []byte("users")

// Config is the explicit configuration object the path resolver is built
// from, replacing ad-hoc global config lookups.
type Config struct {
	// RootDir is the directory new data files are created under. Required.
	RootDir string
	// MappingPath is the path to the user→path mapping database. If empty,
	// it defaults to "<RootDir>/backups.db".
	MappingPath string
}

// Resolver locates and creates per-user backup file pairs.
type Resolver struct {
	cfg Config
	db *bolt.DB
}

// Open opens (creating if absent) the user→path mapping database described
// by cfg.
func Open(cfg Config) (*Resolver, error) {
	if cfg.RootDir == "" {
		return nil, errors.New("userpath: no root directory configured")
	}
	mappingPath := cfg.MappingPath
	if mappingPath == "" {
		mappingPath = filepath.Join(cfg.RootDir, "backups.db")
	}
	if err := os.MkdirAll(cfg.RootDir, 0o770); err != nil {
		return nil, fmt.Errorf("userpath: create root dir: %w", err)
	}
	db, err := bolt.Open(mappingPath, 0o660, nil)
	if err != nil {
		return nil, fmt.Errorf("userpath: open mapping: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(usersBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("userpath: init mapping: %w", err)
	}
	return &Resolver{cfg: cfg, db: db}, nil
}

// Close closes the mapping database.
func (r *Resolver) Close() error {
	return r.db.Close()
}

// Paths is the {data, index} file pair for one user.
type Paths struct {
	Data string
	Index string
}

// Resolve returns the data/index path pair for userID, creating a new
// unique data file and recording it in the mapping on first use.
func (r *Resolver) Resolve(userID string) (Paths, error) {
	dataPath, err := r.fetch(userID)
	if err != nil {
		return Paths{}, err
	}
	if dataPath == "" {
		dataPath, err = r.create(userID)
		if err != nil {
			return Paths{}, err
		}
	}
	return Paths{Data: dataPath, Index: dataPath + ".index"}, nil
}

// fetch looks up an existing mapping entry, returning "" if none exists.
func (r *Resolver) fetch(userID string) (string, error) {
	var path string
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(usersBucket)
		if v := b.Get([]byte(userID)); v != nil {
			path = string(v)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("userpath: fetch %s: %w", userID, err)
	}
	return path, nil
}

// create generates a new unique data file path for userID and commits it
// to the mapping. If the mapping commit fails, the newly created file is
// unlinked.
func (r *Resolver) create(userID string) (string, error) {
	dir, err := r.userDir(userID)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, userID+"_*")
	if err != nil {
		return "", fmt.Errorf("userpath: create unique file for %s: %w", userID, err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("userpath: close new file for %s: %w", userID, err)
	}

	err = r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(usersBucket)
		// Another process may have raced us to create the mapping entry;
		// honor whichever one committed first.
		if existing := b.Get([]byte(userID)); existing != nil {
			return errAlreadyMapped
		}
		return b.Put([]byte(userID), []byte(path))
	})
	if errors.Is(err, errAlreadyMapped) {
		_ = os.Remove(path)
		return r.fetch(userID)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("userpath: commit mapping for %s: %w", userID, err)
	}
	return path, nil
}

var errAlreadyMapped = errors.New("userpath: mapping already exists")

// userDir returns (creating if needed) the 2-hex-character bucket
// directory a user's data file lives under.
func (r *Resolver) userDir(userID string) (string, error) {
	sum := sha1.Sum([]byte(userID)) //nolint:gosec
	sub := hex.EncodeToString(sum[:1])
	dir := filepath.Join(r.cfg.RootDir, sub)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("userpath: create bucket dir: %w", err)
	}
	if len(dir) > 200 {
		return "", fmt.Errorf("userpath: path too long: %s", dir)
	}
	return dir, nil
}
