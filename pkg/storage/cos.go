package storage

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"Raksha/pkg/errors"

	"github.com/tencentyun/cos-go-sdk-v5"
)

type COSConfig struct {
	// BucketURL looks like https://<bucket>-<appid>.cos.<region>.myqcloud.com
	BucketURL string `env:"COS_BUCKET_URL"`
	SecretID  string `env:"COS_SECRET_ID"`
	SecretKey string `env:"COS_SECRET_KEY"`
	BaseURL   string `env:"COS_PUBLIC_BASE"`
}

type COSStore struct {
	cfg COSConfig
	cli *cos.Client
}

func NewCOSStore(cfg COSConfig) (*COSStore, error) {
	u, err := url.Parse(cfg.BucketURL)
	if err != nil || u.Host == "" {
		return nil, errors.Newf(errors.KindInvalid, "bad cos bucket url %q", cfg.BucketURL)
	}
	cli := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})
	return &COSStore{cfg: cfg, cli: cli}, nil
}

func (s *COSStore) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	resp, err := s.cli.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

func (s *COSStore) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: contentType},
	}
	if size > 0 {
		opt.ObjectPutHeaderOptions.ContentLength = size
	}
	_, err := s.cli.Object.Put(ctx, key, r, opt)
	return err
}

func (s *COSStore) Delete(ctx context.Context, key string) error {
	_, err := s.cli.Object.Delete(ctx, key)
	return err
}

func (s *COSStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.cli.Object.IsExist(ctx, key)
}

func (s *COSStore) PublicURL(key string) string {
	if s.cfg.BaseURL != "" {
		return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + key
	}
	return s.cli.Object.GetObjectURL(key).String()
}
