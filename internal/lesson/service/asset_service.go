package service

import (
	"context"
	"io"
	"path"
	"strings"

	"codequest/internal/common/storage"
	"codequest/internal/lesson/assetcache"
	appErr "codequest/pkg/errors"

	"github.com/google/uuid"
)

const assetKeyPrefix = "lessons/"

// Asset describes one stored lesson asset.
type Asset struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// AssetService stores lesson assets in object storage and serves reads
// through the local disk cache.
type AssetService struct {
	storage      storage.ObjectStorage
	cache        *assetcache.AssetCache
	bucket       string
	maxSizeBytes int64
}

// NewAssetService creates a new AssetService.
func NewAssetService(storageClient storage.ObjectStorage, assetCache *assetcache.AssetCache, bucket string, maxSizeBytes int64) *AssetService {
	return &AssetService{
		storage:      storageClient,
		cache:        assetCache,
		bucket:       bucket,
		maxSizeBytes: maxSizeBytes,
	}
}

// Upload stores a new asset under the lesson's prefix and returns its
// object key.
func (s *AssetService) Upload(ctx context.Context, lessonID, filename string, reader io.ReadCloser, sizeBytes int64, contentType string) (Asset, error) {
	if lessonID == "" {
		return Asset{}, appErr.ValidationError("lesson_id", "required")
	}
	if s.maxSizeBytes > 0 && sizeBytes > s.maxSizeBytes {
		return Asset{}, appErr.New(appErr.AssetTooLarge)
	}

	objectKey := assetKeyPrefix + lessonID + "/" + uuid.NewString() + "-" + sanitizeFilename(filename)
	if err := s.storage.PutObject(ctx, s.bucket, objectKey, reader, sizeBytes, contentType); err != nil {
		return Asset{}, appErr.Wrap(err, appErr.AssetUploadFailed)
	}
	return Asset{Key: objectKey, SizeBytes: sizeBytes}, nil
}

// Open returns a reader for an asset, served from the local cache.
func (s *AssetService) Open(ctx context.Context, objectKey string) (io.ReadCloser, assetcache.AssetInfo, error) {
	if !strings.HasPrefix(objectKey, assetKeyPrefix) {
		return nil, assetcache.AssetInfo{}, appErr.New(appErr.AssetNotFound)
	}

	stat, err := s.storage.StatObject(ctx, s.bucket, objectKey)
	if err != nil {
		return nil, assetcache.AssetInfo{}, appErr.Wrap(err, appErr.AssetNotFound)
	}
	return s.cache.Open(ctx, objectKey, stat.ETag)
}

// List returns all assets stored for one lesson.
func (s *AssetService) List(ctx context.Context, lessonID string) ([]Asset, error) {
	if lessonID == "" {
		return nil, appErr.ValidationError("lesson_id", "required")
	}
	assets := []Asset{}
	for info := range s.storage.ListObjects(ctx, s.bucket, assetKeyPrefix+lessonID+"/") {
		if info.Err != nil {
			return nil, appErr.Wrap(info.Err, appErr.InternalServerError)
		}
		assets = append(assets, Asset{Key: info.Key, SizeBytes: info.SizeBytes})
	}
	return assets, nil
}

// Delete removes an asset and drops its cached copy.
func (s *AssetService) Delete(ctx context.Context, objectKey string) error {
	if !strings.HasPrefix(objectKey, assetKeyPrefix) {
		return appErr.New(appErr.AssetNotFound)
	}
	if err := s.storage.RemoveObjects(ctx, s.bucket, []string{objectKey}); err != nil {
		return appErr.Wrap(err, appErr.InternalServerError)
	}
	if s.cache != nil {
		s.cache.Invalidate(objectKey)
	}
	return nil
}

// PresignDownload returns a short-lived direct download URL.
func (s *AssetService) PresignDownload(ctx context.Context, objectKey string) (string, error) {
	if !strings.HasPrefix(objectKey, assetKeyPrefix) {
		return "", appErr.New(appErr.AssetNotFound)
	}
	url, err := s.storage.PresignGetObject(ctx, s.bucket, objectKey, 0)
	if err != nil {
		return "", appErr.Wrap(err, appErr.InternalServerError)
	}
	return url, nil
}

// sanitizeFilename keeps only the base name and replaces path
// separators so keys cannot escape the lesson prefix.
func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "file"
	}
	return base
}
