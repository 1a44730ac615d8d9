package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/render/internal/config"
)

// ErrNotConfigured is returned when no object storage endpoint is set
var ErrNotConfigured = errors.New("object storage is not configured")

const defaultPresignTTL = time.Hour

// Storage reads render outputs from the farm's object storage. Buckets are
// chosen by the farm per render, so every call names one.
type Storage struct {
	client     *minio.Client
	presignTTL time.Duration
}

// New creates a new storage client
func New(cfg config.StorageConfig) (*Storage, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}

	return &Storage{client: client, presignTTL: ttl}, nil
}

// ObjectSize returns the size of an object in bytes
func (s *Storage) ObjectSize(ctx context.Context, bucket, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
	}
	return info.Size, nil
}

// PresignedURL returns a time limited download URL for an object
func (s *Storage) PresignedURL(ctx context.Context, bucket, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, key, s.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to generate URL: %w", err)
	}
	return u.String(), nil
}

// PresignedOutputURL presigns a farm output URL when its object key can be
// derived from it, otherwise it returns outputURL unchanged.
func (s *Storage) PresignedOutputURL(ctx context.Context, bucket, outputURL string) (string, error) {
	key, ok := ObjectKey(bucket, outputURL)
	if !ok {
		return outputURL, nil
	}
	return s.PresignedURL(ctx, bucket, key)
}

// ObjectKey extracts the object key from an output URL in either
// virtual-host style (bucket.host/key) or path style (host/bucket/key).
func ObjectKey(bucket, outputURL string) (string, bool) {
	u, err := url.Parse(outputURL)
	if err != nil || u.Host == "" {
		return "", false
	}

	path := strings.TrimPrefix(u.Path, "/")
	if strings.HasPrefix(u.Host, bucket+".") {
		return path, path != ""
	}

	if key, found := strings.CutPrefix(path, bucket+"/"); found && key != "" {
		return key, true
	}
	return "", false
}
