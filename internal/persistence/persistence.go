// Package persistence writes JSON snapshots atomically to disk, with an
// optional Redis mirror when REDIS_ADDR is configured. Files remain the
// source of truth; Redis is a hot copy for fast restores.
package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisTimeout = 500 * time.Millisecond

// Store persists named JSON blobs.
type Store interface {
	Save(name string, data []byte) error
	Load(name string) ([]byte, error)
}

type fileStore struct {
	dir    string
	mirror *redis.Client
}

// New returns a file-backed store rooted at dir. When redisAddr is
// non-empty, snapshots are mirrored to Redis under "perpsignal:<name>".
func New(dir, redisAddr string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	fs := &fileStore{dir: dir}
	if redisAddr != "" {
		fs.mirror = redis.NewClient(&redis.Options{Addr: redisAddr})
		log.Info().Str("addr", redisAddr).Msg("Snapshot mirror enabled")
	}
	return fs, nil
}

// Save writes data to <dir>/<name> via a temp file and rename so a crash
// mid-write never leaves a truncated snapshot behind.
func (fs *fileStore) Save(name string, data []byte) error {
	path := filepath.Join(fs.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	fs.mirrorSave(name, data)
	return nil
}

// Load reads a snapshot, preferring the file and falling back to the
// Redis mirror when the file is absent.
func (fs *fileStore) Load(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(fs.dir, name))
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	if fs.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()
		if v, rerr := fs.mirror.Get(ctx, "perpsignal:"+name).Bytes(); rerr == nil {
			log.Info().Str("name", name).Msg("Restored snapshot from Redis mirror")
			return v, nil
		}
	}
	return nil, err
}

func (fs *fileStore) mirrorSave(name string, data []byte) {
	if fs.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := fs.mirror.Set(ctx, "perpsignal:"+name, data, 48*time.Hour).Err(); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Redis mirror write failed")
	}
}
