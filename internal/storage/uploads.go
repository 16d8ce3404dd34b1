// Package storage persists creator media uploads (avatar photos and voice
// samples) and serves them back at stable public URLs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyncarl8-oss/auto-welcome/pkg/gcs"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeGCS   StorageType = "gcs"
)

// UploadStore saves uploaded media and returns a publicly reachable URL.
// The URL must stay valid for as long as the creator keeps the media, since
// the video provider fetches assets from it at generation time.
type UploadStore interface {
	Save(ctx context.Context, originalName string, data []byte, contentType string) (string, error)
}

// NewUploadStore creates the configured storage backend. Local disk is the
// default; GCS is used when storageType is gcs and a bucket is configured.
func NewUploadStore(ctx context.Context, storageType StorageType, localDir, baseURL, gcsBucket string) (UploadStore, error) {
	switch storageType {
	case StorageTypeGCS:
		if gcsBucket == "" {
			return nil, fmt.Errorf("gcs storage requires a bucket name")
		}
		client, err := gcs.NewGCSClient(ctx, gcsBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		logger.Base().Info("upload storage using GCS", zap.String("bucket", gcsBucket))
		return &GCSUploadStore{client: client}, nil
	case StorageTypeLocal, "":
		if err := os.MkdirAll(localDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create upload directory: %w", err)
		}
		logger.Base().Info("upload storage using local disk", zap.String("dir", localDir))
		return &LocalUploadStore{dir: localDir, baseURL: strings.TrimRight(baseURL, "/")}, nil
	default:
		return nil, fmt.Errorf("unknown upload storage type: %s", storageType)
	}
}

// LocalUploadStore writes uploads to a directory served by the static file
// handler.
type LocalUploadStore struct {
	dir     string
	baseURL string
}

// Save writes the upload under a random name, keeping the original extension
func (s *LocalUploadStore) Save(ctx context.Context, originalName string, data []byte, contentType string) (string, error) {
	name := uuid.New().String() + safeExtension(originalName)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	logger.Base().Debug("upload saved",
		zap.String("path", path),
		zap.Int("size", len(data)))
	return s.baseURL + "/" + filepath.ToSlash(filepath.Join(s.dir, name)), nil
}

// GCSUploadStore writes uploads to a Google Cloud Storage bucket
type GCSUploadStore struct {
	client *gcs.GCSClient
}

// Save writes the upload under a random object name in the bucket
func (s *GCSUploadStore) Save(ctx context.Context, originalName string, data []byte, contentType string) (string, error) {
	object := "uploads/" + uuid.New().String() + safeExtension(originalName)
	url, err := s.client.Upload(ctx, object, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to upload to GCS: %w", err)
	}
	return url, nil
}

// safeExtension returns a lowercase file extension stripped of anything that
// could escape the upload directory
func safeExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
