package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider serves objects from a directory on disk. Used for local runs
// and tests, not production deployments.
type LocalProvider struct {
	dir string
}

var _ Provider = (*LocalProvider)(nil)

func NewLocalProvider(dir string) *LocalProvider {
	return &LocalProvider{dir: dir}
}

func (p *LocalProvider) CreateBucket(ctx context.Context, bucket string) error {
	return os.MkdirAll(filepath.Join(p.dir, bucket), os.ModePerm)
}

func (p *LocalProvider) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(p.dir, bucket, key))
}

func (p *LocalProvider) DownloadObject(ctx context.Context, bucket, key, filename string) error {
	data, err := p.GetObject(ctx, bucket, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filename), os.ModePerm); err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

func (p *LocalProvider) PutObject(ctx context.Context, bucket, key string, data io.Reader) error {
	path := filepath.Join(p.dir, bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		return err
	}

	return nil
}

func (p *LocalProvider) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	files, err := os.ReadDir(filepath.Join(p.dir, bucket))
	if err != nil {
		return nil, err
	}

	var objects []Object
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if prefix != "" && !strings.HasPrefix(file.Name(), prefix) {
			continue
		}

		info, err := file.Info()
		if err != nil {
			return nil, err
		}

		objects = append(objects, Object{Name: file.Name(), Size: info.Size()})
	}

	return objects, nil
}
