// A content addressed store for downloaded tools. Files are keyed by
// the SHA-256 of their content so the same binary is only ever
// fetched once, whatever it is called.
//
// Layout:
//
//	<root>/sha256/<hash[0:2]>/<hash>
//	<root>/tmp/             in progress downloads
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/go-errors/errors"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils"
)

var (
	hash_regex = regexp.MustCompile(`^[0-9a-f]{64}$`)

	CorruptEntryError = errors.New("CorruptEntryError")
)

type Cache struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCache(root string) (*Cache, error) {
	if root == "" {
		return nil, utils.Wrap(utils.InvalidArgError, "cache directory not set")
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{"sha256", "tmp"} {
		err := os.MkdirAll(filepath.Join(root, dir), 0700)
		if err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	return &Cache{
		root:  root,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (self *Cache) Root() string {
	return self.root
}

// Downloads are written here so they can be renamed into the cache.
func (self *Cache) TempDir() string {
	return filepath.Join(self.root, "tmp")
}

func (self *Cache) Path(hash string) (string, error) {
	if !hash_regex.MatchString(hash) {
		return "", utils.Wrap(utils.InvalidArgError, "invalid hash %q", hash)
	}
	return filepath.Join(self.root, "sha256", hash[:2], hash), nil
}

func (self *Cache) lock(hash string) func() {
	self.mu.Lock()
	l, pres := self.locks[hash]
	if !pres {
		l = &sync.Mutex{}
		self.locks[hash] = l
	}
	self.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (self *Cache) Has(hash string) bool {
	path, err := self.Path(hash)
	if err != nil {
		return false
	}

	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Move the file at src_path into the cache under hash. The caller
// must have computed hash over the file. If the entry already exists
// it is kept and src_path is removed.
func (self *Cache) Put(hash, src_path string) (string, error) {
	path, err := self.Path(hash)
	if err != nil {
		return "", err
	}

	defer self.lock(hash)()

	if self.Has(hash) {
		_ = os.Remove(src_path)
		return path, nil
	}

	err = os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return "", err
	}

	err = os.Rename(src_path, path)
	if err != nil {
		return "", fmt.Errorf("%w: moving %v into cache: %v",
			utils.IOError, src_path, err)
	}

	return path, nil
}

// Rehash a cache entry. Corrupt entries are evicted and reported with
// CorruptEntryError. Returns the size of the entry.
func (self *Cache) Verify(ctx context.Context, hash string) (int64, error) {
	path, err := self.Path(hash)
	if err != nil {
		return 0, err
	}

	defer self.lock(hash)()

	fd, err := os.Open(path)
	if err != nil {
		return 0, err
	}

	sha_sum := sha256.New()
	n, err := utils.Copy(ctx, sha_sum, fd)
	fd.Close()
	if err != nil {
		return 0, err
	}

	computed := hex.EncodeToString(sha_sum.Sum(nil))
	if computed != hash {
		_ = os.Remove(path)
		return 0, fmt.Errorf("%w: %v has hash %v", CorruptEntryError, path, computed)
	}

	return n, nil
}

func (self *Cache) Evict(hash string) error {
	path, err := self.Path(hash)
	if err != nil {
		return err
	}

	defer self.lock(hash)()

	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
