// Package storage keeps finished evidence clips in object storage.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"Raksha/pkg/errors"
)

// Store is a flat key/value blob store.
type Store interface {
	Read(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
}

const (
	KindLocal = "local"
	KindMinio = "minio"
	KindCOS   = "cos"
)

type Config struct {
	Kind  string `env:"STORAGE_KIND"`
	Local LocalConfig
	Minio MinioConfig
	COS   COSConfig
}

// New builds the store selected by cfg.Kind; empty means local.
func New(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", KindLocal:
		return NewLocalStore(cfg.Local)
	case KindMinio:
		return NewMinioStore(cfg.Minio)
	case KindCOS:
		return NewCOSStore(cfg.COS)
	}
	return nil, errors.Newf(errors.KindInvalid, "unknown storage kind %q", cfg.Kind)
}

// ClipKey names the object of an alert's clip, partitioned by day.
func ClipKey(alertID string, at time.Time, contentType string) string {
	return path.Join("clips", at.UTC().Format("2006/01/02"), alertID+extension(contentType))
}

func extension(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "video/webm"), strings.HasPrefix(contentType, "audio/webm"):
		return ".webm"
	case strings.HasPrefix(contentType, "video/x-ivf"):
		return ".ivf"
	case strings.HasPrefix(contentType, "audio/L16"), strings.HasPrefix(contentType, "audio/pcm"):
		return ".pcm"
	}
	return ".bin"
}

// Uploader adapts a Store to the clip upload port.
type Uploader struct {
	store Store
}

func NewUploader(store Store) *Uploader {
	return &Uploader{store: store}
}

// Upload writes the clip and returns the key it was stored under.
func (u *Uploader) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if key == "" {
		return "", errors.New(errors.KindInvalid, "empty clip key")
	}
	if err := u.store.Write(ctx, key, r, size, contentType); err != nil {
		return "", errors.Mark(err, errors.KindTransient, "upload clip")
	}
	return key, nil
}

func (u *Uploader) Store() Store { return u.store }
