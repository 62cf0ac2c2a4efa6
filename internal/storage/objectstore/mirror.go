package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const archiveContentType = "application/zip"

// Mirror copies finished product archives into a bucket.
type Mirror struct {
	store  Store
	bucket string
	prefix string
}

func NewMirror(store Store, bucket, prefix string) (*Mirror, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Mirror{store: store, bucket: bucket, prefix: prefix}, nil
}

// Upload puts the file at path under <prefix><base name> and returns the
// stored object's metadata. The stored size must match the local file.
func (m *Mirror) Upload(ctx context.Context, path string) (ObjectInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}

	key := m.prefix + filepath.Base(path)
	if err := m.store.Put(ctx, m.bucket, key, f, st.Size(), archiveContentType); err != nil {
		return ObjectInfo{}, fmt.Errorf("put %s/%s: %w", m.bucket, key, err)
	}

	info, err := m.store.Stat(ctx, m.bucket, key)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat %s/%s: %w", m.bucket, key, err)
	}
	if info.Size != st.Size() {
		return info, fmt.Errorf("mirror size mismatch for %s: stored %d, local %d", key, info.Size, st.Size())
	}
	return info, nil
}
