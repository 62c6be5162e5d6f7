package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps result entries on disk as <digest>.json. Expiry is encoded
// in the file's modification time: Set stamps mtime to now+ttl, and Get treats
// a file whose mtime has passed as a miss. Expired files are left for
// PurgeExpiredResults or the next Set of the same key, so a Get never
// removes an entry a concurrent Set just wrote.
type FileStore struct {
	Dir string
	// StrictPerms, when true, enforces 0700 on cache directories and 0600 on
	// files.
	StrictPerms bool
}

func (c *FileStore) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	perm := os.FileMode(0o755)
	if c.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(c.Dir, perm); err != nil {
		return err
	}
	if c.StrictPerms {
		if info, err := os.Stat(c.Dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(c.Dir, 0o700)
		}
	}
	return nil
}

func (c *FileStore) pathFor(key string) string {
	// keys carry a "serpgate:v1:" prefix; colons are not portable in file names
	return filepath.Join(c.Dir, strings.ReplaceAll(key, ":", "_")+".json")
}

// Get returns cached bytes if present and not expired.
func (c *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := c.ensureDir(); err != nil {
		return nil, err
	}
	p := c.pathFor(key)
	info, err := os.Stat(p)
	if err != nil {
		return nil, ErrMiss
	}
	if time.Now().After(info.ModTime()) {
		return nil, ErrMiss
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, ErrMiss
	}
	return b, nil
}

// Set writes bytes atomically and stamps the expiry.
func (c *FileStore) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	p := c.pathFor(key)
	mode := os.FileMode(0o644)
	if c.StrictPerms {
		mode = 0o600
	}
	f, err := os.CreateTemp(c.Dir, ".entry-*.tmp")
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	_, werr := f.Write(data)
	if err := errors.Join(werr, f.Chmod(mode), f.Close()); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	// the expiry is stamped before the entry becomes visible
	now := time.Now()
	if err := os.Chtimes(tmp, now, now.Add(ttl)); err != nil {
		return fmt.Errorf("stamp entry: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("rename entry: %w", err)
	}
	return nil
}
