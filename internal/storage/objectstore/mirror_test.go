package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

type memStore struct {
	objects     map[string][]byte
	contentType string
	putErr      error
	truncate    bool
}

func (s *memStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	blob, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if s.truncate && len(blob) > 0 {
		blob = blob[:len(blob)-1]
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[bucket+"/"+key] = blob
	s.contentType = contentType
	return nil
}

func (s *memStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	blob, ok := s.objects[bucket+"/"+key]
	if !ok {
		return ObjectInfo{}, errors.New("not found")
	}
	return ObjectInfo{Key: key, Size: int64(len(blob)), ContentType: s.contentType}, nil
}

func writeArchive(t *testing.T, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("WriteFile() err=%v", err)
	}
	return path
}

func TestMirrorUpload(t *testing.T) {
	body := bytes.Repeat([]byte{0x5a}, 3000)
	path := writeArchive(t, "S5P_NO2_20230901.zip", body)

	store := &memStore{}
	mirror, err := NewMirror(store, "products", "s5p")
	if err != nil {
		t.Fatalf("NewMirror() err=%v", err)
	}
	info, err := mirror.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload() err=%v", err)
	}
	if info.Key != "s5p/S5P_NO2_20230901.zip" {
		t.Fatalf("Key=%q", info.Key)
	}
	if !bytes.Equal(store.objects["products/s5p/S5P_NO2_20230901.zip"], body) {
		t.Fatalf("stored bytes differ from local file")
	}
	if store.contentType != "application/zip" {
		t.Fatalf("ContentType=%q, want application/zip", store.contentType)
	}
}

func TestMirrorUploadDetectsSizeMismatch(t *testing.T) {
	path := writeArchive(t, "a.zip", []byte("abcdef"))
	mirror, err := NewMirror(&memStore{truncate: true}, "products", "")
	if err != nil {
		t.Fatalf("NewMirror() err=%v", err)
	}
	if _, err := mirror.Upload(context.Background(), path); err == nil {
		t.Fatalf("Upload() expected size mismatch error")
	}
}

func TestMirrorUploadPropagatesPutError(t *testing.T) {
	path := writeArchive(t, "a.zip", []byte("abc"))
	putErr := errors.New("bucket gone")
	mirror, err := NewMirror(&memStore{putErr: putErr}, "products", "")
	if err != nil {
		t.Fatalf("NewMirror() err=%v", err)
	}
	_, err = mirror.Upload(context.Background(), path)
	if !errors.Is(err, putErr) {
		t.Fatalf("Upload() err=%v, want %v", err, putErr)
	}
}

func TestNewMirrorRequiresStoreAndBucket(t *testing.T) {
	if _, err := NewMirror(nil, "b", ""); err == nil {
		t.Fatalf("NewMirror() expected error for nil store")
	}
	if _, err := NewMirror(&memStore{}, " ", ""); err == nil {
		t.Fatalf("NewMirror() expected error for blank bucket")
	}
}
