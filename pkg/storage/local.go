package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"Raksha/pkg/errors"
)

type LocalConfig struct {
	Root    string `env:"STORAGE_LOCAL_ROOT"`
	BaseURL string `env:"STORAGE_LOCAL_BASE"`
}

// LocalStore keeps objects as files below Root.
type LocalStore struct {
	root string
	base string
}

func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	root := cfg.Root
	if root == "" {
		root = "data/clips"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Mark(err, errors.KindInvalid, "resolve storage root")
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, errors.Mark(err, errors.KindUnavailable, "create storage root")
	}
	return &LocalStore{root: abs, base: strings.TrimRight(cfg.BaseURL, "/")}, nil
}

// path maps key below root and refuses keys that escape it.
func (s *LocalStore) path(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if key == "" || !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", errors.Newf(errors.KindInvalid, "bad object key %q", key)
	}
	return p, nil
}

func (s *LocalStore) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, st.Size(), nil
}

// Write stages into a temp file and renames, so readers never see a partial clip.
func (s *LocalStore) Write(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	}
	return false, err
}

func (s *LocalStore) PublicURL(key string) string {
	if s.base == "" {
		return "file://" + filepath.ToSlash(filepath.Join(s.root, key))
	}
	return s.base + "/" + key
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
