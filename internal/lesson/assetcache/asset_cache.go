// Package assetcache keeps zstd-compressed local copies of lesson
// assets so repeated reads do not hit object storage.
package assetcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"codequest/internal/common/cache"
	"codequest/internal/common/storage"
	appErr "codequest/pkg/errors"
)

const (
	metaFileName  = "meta.json"
	dataFileName  = "asset.zst"
	tempFileName  = "asset.tmp"
	lockKeyPrefix = "lesson:asset:lock:"
)

// AssetInfo describes a cached asset.
type AssetInfo struct {
	Key         string `json:"key"`
	ETag        string `json:"etag"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

type cacheEntry struct {
	key       string
	path      string
	sizeBytes int64
	expiresAt time.Time
}

// AssetCache manages local asset caching. Entries live in one
// directory per asset holding the compressed copy and its metadata.
type AssetCache struct {
	rootDir    string
	ttl        time.Duration
	lockWait   time.Duration
	maxEntries int
	maxBytes   int64
	bucket     string
	storage    storage.ObjectStorage
	lock       cache.LockOps
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	lruKeys    []string
	totalSize  int64
}

// NewAssetCache creates a new cache.
func NewAssetCache(rootDir string, ttl, lockWait time.Duration, maxEntries int, maxBytes int64, bucket string, storageClient storage.ObjectStorage, lock cache.LockOps) *AssetCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if lockWait <= 0 {
		lockWait = 30 * time.Second
	}
	return &AssetCache{
		rootDir:    rootDir,
		ttl:        ttl,
		lockWait:   lockWait,
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		bucket:     bucket,
		storage:    storageClient,
		lock:       lock,
		entries:    make(map[string]*cacheEntry),
	}
}

// Open returns a decompressed reader for the asset identified by
// objectKey. etag pins the expected object version; a stale local copy
// is refetched.
func (c *AssetCache) Open(ctx context.Context, objectKey, etag string) (io.ReadCloser, AssetInfo, error) {
	if objectKey == "" {
		return nil, AssetInfo{}, appErr.ValidationError("object_key", "required")
	}
	if c.storage == nil {
		return nil, AssetInfo{}, appErr.New(appErr.CacheError).WithMessage("storage client is not initialized")
	}
	if c.rootDir == "" {
		return nil, AssetInfo{}, appErr.New(appErr.CacheError).WithMessage("cache root is not configured")
	}

	key := entryKey(objectKey)
	path := filepath.Join(c.rootDir, key)

	if !c.checkDisk(path, objectKey, etag) {
		if err := c.fetchAndCompress(ctx, objectKey, etag, path); err != nil {
			return nil, AssetInfo{}, err
		}
		c.addEntry(key, path)
	} else if !c.hitEntry(key) {
		c.addEntry(key, path)
	}

	return c.openEntry(path)
}

func (c *AssetCache) openEntry(path string) (io.ReadCloser, AssetInfo, error) {
	metaBytes, err := os.ReadFile(filepath.Join(path, metaFileName))
	if err != nil {
		return nil, AssetInfo{}, appErr.Wrapf(err, appErr.CacheError, "read asset meta failed")
	}
	var info AssetInfo
	if err := json.Unmarshal(metaBytes, &info); err != nil {
		return nil, AssetInfo{}, appErr.Wrapf(err, appErr.CacheError, "decode asset meta failed")
	}

	file, err := os.Open(filepath.Join(path, dataFileName))
	if err != nil {
		return nil, AssetInfo{}, appErr.Wrapf(err, appErr.CacheError, "open cached asset failed")
	}
	decoder, err := zstd.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, AssetInfo{}, appErr.Wrapf(err, appErr.CacheError, "create zstd reader failed")
	}
	return &decompressingReader{decoder: decoder, file: file}, info, nil
}

type decompressingReader struct {
	decoder *zstd.Decoder
	file    *os.File
}

func (r *decompressingReader) Read(p []byte) (int, error) {
	return r.decoder.Read(p)
}

func (r *decompressingReader) Close() error {
	r.decoder.Close()
	return r.file.Close()
}

func (c *AssetCache) hitEntry(key string) bool {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if time.Now().After(entry.expiresAt) {
		c.removeEntryLocked(key)
		c.mu.Unlock()
		return false
	}
	entry.expiresAt = time.Now().Add(c.ttl)
	c.touchLocked(key)
	c.mu.Unlock()
	return true
}

func (c *AssetCache) checkDisk(path, objectKey, etag string) bool {
	metaBytes, err := os.ReadFile(filepath.Join(path, metaFileName))
	if err != nil {
		return false
	}
	var stored AssetInfo
	if err := json.Unmarshal(metaBytes, &stored); err != nil {
		return false
	}
	if stored.Key != objectKey {
		return false
	}
	if etag != "" && !strings.EqualFold(stored.ETag, etag) {
		return false
	}
	if _, err := os.Stat(filepath.Join(path, dataFileName)); err != nil {
		return false
	}
	return true
}

func (c *AssetCache) fetchAndCompress(ctx context.Context, objectKey, etag, path string) error {
	if c.lock == nil {
		return appErr.New(appErr.CacheError).WithMessage("lock client is not initialized")
	}
	lockKey := lockKeyPrefix + entryKey(objectKey)
	locked, err := c.lock.TryLock(ctx, lockKey, 5*time.Minute)
	if err != nil {
		return appErr.Wrapf(err, appErr.LockFailed, "acquire asset lock failed")
	}
	if !locked {
		return c.waitForCache(ctx, objectKey, etag, path)
	}
	defer func() {
		_ = c.lock.Unlock(ctx, lockKey)
	}()

	if ok := c.checkDisk(path, objectKey, etag); ok {
		return nil
	}

	if err := os.RemoveAll(path); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "cleanup cache dir failed")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create cache dir failed")
	}

	stat, err := c.storage.StatObject(ctx, c.bucket, objectKey)
	if err != nil {
		return appErr.Wrap(err, appErr.AssetNotFound)
	}

	tempPath := filepath.Join(path, tempFileName)
	if err := c.downloadCompressed(ctx, objectKey, tempPath); err != nil {
		return err
	}
	if err := os.Rename(tempPath, filepath.Join(path, dataFileName)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store cached asset failed")
	}

	info := AssetInfo{
		Key:         objectKey,
		ETag:        stat.ETag,
		SizeBytes:   stat.SizeBytes,
		ContentType: stat.ContentType,
	}
	metaBytes, _ := json.Marshal(info)
	if err := os.WriteFile(filepath.Join(path, metaFileName), metaBytes, 0644); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "write asset meta failed")
	}
	return nil
}

func (c *AssetCache) waitForCache(ctx context.Context, objectKey, etag, path string) error {
	deadline := time.Now().Add(c.lockWait)
	for {
		if ok := c.checkDisk(path, objectKey, etag); ok {
			return nil
		}
		if time.Now().After(deadline) {
			return appErr.New(appErr.Timeout).WithMessage("wait for asset cache timeout")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (c *AssetCache) downloadCompressed(ctx context.Context, objectKey, dstPath string) error {
	reader, err := c.storage.GetObject(ctx, c.bucket, objectKey)
	if err != nil {
		return appErr.Wrap(err, appErr.AssetNotFound)
	}
	defer reader.Close()

	file, err := os.Create(dstPath)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create asset file failed")
	}
	defer file.Close()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create zstd writer failed")
	}
	if _, err := io.Copy(encoder, reader); err != nil {
		_ = encoder.Close()
		return appErr.Wrapf(err, appErr.CacheError, "write asset file failed")
	}
	if err := encoder.Close(); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "flush asset file failed")
	}
	return nil
}

func (c *AssetCache) addEntry(key, path string) {
	size := dirSize(path)
	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		c.totalSize -= existing.sizeBytes
	}
	c.entries[key] = &cacheEntry{
		key:       key,
		path:      path,
		sizeBytes: size,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.totalSize += size
	c.touchLocked(key)
	c.evictLocked()
	c.mu.Unlock()
}

// Invalidate drops the cached copy of an object, if present.
func (c *AssetCache) Invalidate(objectKey string) {
	key := entryKey(objectKey)
	c.mu.Lock()
	c.removeEntryLocked(key)
	c.mu.Unlock()
	_ = os.RemoveAll(filepath.Join(c.rootDir, key))
}

func (c *AssetCache) touchLocked(key string) {
	for i, k := range c.lruKeys {
		if k == key {
			c.lruKeys = append(c.lruKeys[:i], c.lruKeys[i+1:]...)
			break
		}
	}
	c.lruKeys = append(c.lruKeys, key)
}

func (c *AssetCache) evictLocked() {
	for {
		if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
			c.removeOldestLocked()
			continue
		}
		if c.maxBytes > 0 && c.totalSize > c.maxBytes {
			c.removeOldestLocked()
			continue
		}
		break
	}
}

func (c *AssetCache) removeOldestLocked() {
	if len(c.lruKeys) == 0 {
		return
	}
	key := c.lruKeys[0]
	c.lruKeys = c.lruKeys[1:]
	c.removeEntryLocked(key)
}

func (c *AssetCache) removeEntryLocked(key string) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	c.totalSize -= entry.sizeBytes
	_ = os.RemoveAll(entry.path)
}

func entryKey(objectKey string) string {
	sum := sha256.Sum256([]byte(objectKey))
	return hex.EncodeToString(sum[:])
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}
