package storage

import (
	"fmt"
	"strings"

	"github.com/timmy/parlsync/internal/config"
)

// NewStorage creates the ObjectStorage selected by the cache configuration.
// Parameters:
//   - cfg: cache configuration; Type "local" (or empty) picks the filesystem,
//     "s3", "r2" and "s3compatible" pick the S3 client.
//
// Returns:
//   - ObjectStorage: initialized storage implementation.
//   - error: non-nil if the storage cannot be created.
func NewStorage(cfg *config.CacheConfig) (ObjectStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		return NewLocalStorage(cfg.Dir)
	case string(StorageTypeS3), string(StorageTypeR2), string(StorageTypeS3Compatible), "auto":
		storeType := StorageType(strings.ToLower(cfg.Type))
		if storeType == "auto" {
			storeType = detectStorageType(cfg.Endpoint)
		}
		return NewS3Storage(&S3Config{
			Type:      storeType,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
		})
	default:
		return nil, fmt.Errorf("unsupported cache storage type %q", cfg.Type)
	}
}

// detectStorageType guesses the provider from the endpoint host.
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
