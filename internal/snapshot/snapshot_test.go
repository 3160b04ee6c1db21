package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-cmp/cmp"

	"github.com/litcat/litrec/internal/storage"
)

// fakeS3 keeps objects in memory.
type fakeS3 struct {
	objects map[string][]byte
}

var errNoSuchKey = errors.New("NoSuchKey")

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func setupTestDB(t *testing.T) *storage.DB {
	t.Helper()

	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	src := setupTestDB(t)
	for _, h := range []struct{ provider, id, hash string }{
		{"WB", "WB:WBPaper1", "aa"},
		{"WB", "WB:WBPaper2", "bb"},
		{"ZFIN", "ZFIN:ZDB-PUB-1", "cc"},
	} {
		if err := src.PutHash(ctx, h.provider, h.id, h.hash); err != nil {
			t.Fatal(err)
		}
	}

	fake := &fakeS3{objects: map[string][]byte{}}
	store := New(fake, Config{Bucket: "backups", Prefix: "litrec"}, nil)

	key, n, err := store.Backup(ctx, src, "WB")
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if key != "litrec/content-hashes/WB.json" || n != 2 {
		t.Errorf("Backup() = %q, %d", key, n)
	}

	dst := setupTestDB(t)
	got, err := store.Restore(ctx, dst, "WB")
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got != 2 {
		t.Errorf("Restore() = %d hashes, want 2", got)
	}

	want, _ := src.ListHashes(ctx, "WB")
	restored, err := dst.ListHashes(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, restored); diff != "" {
		t.Errorf("restored hashes mismatch (-want +got):\n%s", diff)
	}
}

func TestBackup_AllProviders(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	_ = db.PutHash(ctx, "WB", "a", "1")
	_ = db.PutHash(ctx, "SGD", "b", "2")

	store := New(&fakeS3{objects: map[string][]byte{}}, Config{Bucket: "b"}, nil)
	key, n, err := store.Backup(ctx, db, "")
	if err != nil {
		t.Fatal(err)
	}
	if key != "content-hashes/all.json" || n != 2 {
		t.Errorf("Backup() = %q, %d", key, n)
	}
}

func TestRestore_Missing(t *testing.T) {
	store := New(&fakeS3{objects: map[string][]byte{}}, Config{Bucket: "b"}, nil)
	if _, err := store.Restore(context.Background(), setupTestDB(t), "WB"); !errors.Is(err, errNoSuchKey) {
		t.Errorf("Restore() error = %v, want missing key", err)
	}
}

func TestRestore_RejectsUnknownVersion(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{
		"b/content-hashes/WB.json": []byte(`{"version": 99, "hashes": []}`),
	}}
	store := New(fake, Config{Bucket: "b"}, nil)
	if _, err := store.Restore(context.Background(), setupTestDB(t), "WB"); err == nil {
		t.Error("Restore() accepted an unknown snapshot version")
	}
}

func TestNewS3Client_RequiresBucket(t *testing.T) {
	if _, err := NewS3Client(context.Background(), Config{}); !errors.Is(err, ErrNoBucket) {
		t.Errorf("NewS3Client() error = %v, want ErrNoBucket", err)
	}
}
