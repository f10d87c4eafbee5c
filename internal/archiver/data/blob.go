package data

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	pkgminio "github.com/lk2023060901/auto-archiver/internal/pkg/minio"
)

// BlobStore 文件内容存储
type BlobStore interface {
	// Put stores data and returns a fresh key.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns biz.ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

func newBlobKey() string {
	id := uuid.NewString()
	return id[:2] + "/" + id
}

// LocalBlobStore 本地磁盘存储，键为 dir 下的相对路径
type LocalBlobStore struct {
	dir string
}

func NewLocalBlobStore(dir string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	return &LocalBlobStore{dir: dir}, nil
}

func (s *LocalBlobStore) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), nil
}

func (s *LocalBlobStore) Put(_ context.Context, data []byte) (string, error) {
	key := newBlobKey()
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", err
	}

	// 先写临时文件再重命名，避免读到半截内容
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return key, nil
}

func (s *LocalBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, biz.ErrNotFound
	}
	return data, err
}

func (s *LocalBlobStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// MinIOBlobStore 对象存储实现，所有内容放在同一个 bucket
type MinIOBlobStore struct {
	client *pkgminio.Client
	bucket string
}

func NewMinIOBlobStore(ctx context.Context, client *pkgminio.Client) (*MinIOBlobStore, error) {
	if err := client.EnsureBucket(ctx, client.Bucket()); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}
	return &MinIOBlobStore{client: client, bucket: client.Bucket()}, nil
}

func (s *MinIOBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	key := "blobs/" + newBlobKey()
	if _, err := s.client.PutObject(ctx, s.bucket, key, data, "application/octet-stream"); err != nil {
		return "", err
	}
	return key, nil
}

func (s *MinIOBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetObject(ctx, s.bucket, key)
	if pkgminio.IsNotFound(err) {
		return nil, biz.ErrNotFound
	}
	return data, err
}

func (s *MinIOBlobStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key)
	if pkgminio.IsNotFound(err) {
		return nil
	}
	return err
}
