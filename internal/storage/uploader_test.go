package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"audio-workbench/internal/domain"
)

// fakeObjectAPI records puts and answers stats from a map.
type fakeObjectAPI struct {
	put     func(bucket, key string, body []byte, opts minio.PutObjectOptions) error
	objects map[string]bool
	bucket  bool
}

// PutObject reads the body through the progress hook like minio does.
func (f *fakeObjectAPI) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if opts.Progress != nil {
		half := len(body) / 2
		if _, err := opts.Progress.Read(body[:half]); err != nil {
			return minio.UploadInfo{}, err
		}
		if _, err := opts.Progress.Read(body[half:]); err != nil {
			return minio.UploadInfo{}, err
		}
	}
	if f.put != nil {
		if err := f.put(bucket, key, body, opts); err != nil {
			return minio.UploadInfo{}, err
		}
	}
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

// StatObject returns NoSuchKey for unknown keys.
func (f *fakeObjectAPI) StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if f.objects[key] {
		return minio.ObjectInfo{Key: key}, nil
	}
	return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
}

// BucketExists returns the configured flag.
func (f *fakeObjectAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return f.bucket, nil
}

// testCreds returns complete storage credentials.
func testCreds() domain.StorageCredentials {
	return domain.StorageCredentials{
		AccessKey: "ak",
		SecretKey: "sk",
		Endpoint:  "https://tos-s3-cn-beijing.volces.com/",
		Region:    "cn-beijing",
		Bucket:    "media",
	}
}

// TestUploadBuildsKeyAndURL checks key layout, URL format and progress.
func TestUploadBuildsKeyAndURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talk_segment_1.mp3")
	if err := os.WriteFile(path, []byte(strings.Repeat("a", 1000)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var gotBody []byte
	var gotType string
	api := &fakeObjectAPI{put: func(bucket, key string, body []byte, opts minio.PutObjectOptions) error {
		gotBody = body
		gotType = opts.ContentType
		return nil
	}}
	u := newUploader(api, testCreds(), nil)
	u.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	u.newID = func() string { return "abcd1234" }
	u.interval = 0

	var percents []int
	obj, err := u.Upload(context.Background(), path, sinkFunc(func(p int, _ string) { percents = append(percents, p) }))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	wantKey := "audio_transcription/20240309_140507_abcd1234_talk_segment_1.mp3"
	if obj.Key != wantKey {
		t.Fatalf("key = %q, want %q", obj.Key, wantKey)
	}
	wantURL := "https://media.tos-s3-cn-beijing.volces.com/" + wantKey
	if obj.URL != wantURL {
		t.Fatalf("url = %q, want %q", obj.URL, wantURL)
	}
	if len(gotBody) != 1000 || obj.Size != 1000 {
		t.Fatalf("uploaded %d bytes, size %d, want 1000", len(gotBody), obj.Size)
	}
	if gotType != "audio/mpeg" {
		t.Fatalf("content type = %q, want audio/mpeg", gotType)
	}
	if len(percents) != 2 || percents[0] != 50 || percents[1] != 100 {
		t.Fatalf("percents = %v, want [50 100]", percents)
	}
}

// TestUploadPropagatesPutError checks failure wrapping.
func TestUploadPropagatesPutError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	boom := errors.New("connection reset")
	u := newUploader(&fakeObjectAPI{put: func(string, string, []byte, minio.PutObjectOptions) error { return boom }}, testCreds(), nil)
	if _, err := u.Upload(context.Background(), path, nil); !errors.Is(err, boom) {
		t.Fatalf("Upload() error = %v, want %v", err, boom)
	}
}

// TestExistsMapsNoSuchKey checks the object existence probe.
func TestExistsMapsNoSuchKey(t *testing.T) {
	u := newUploader(&fakeObjectAPI{objects: map[string]bool{"k1": true}}, testCreds(), nil)
	if ok, err := u.Exists(context.Background(), "k1"); err != nil || !ok {
		t.Fatalf("Exists(k1) = %v, %v, want true", ok, err)
	}
	if ok, err := u.Exists(context.Background(), "k2"); err != nil || ok {
		t.Fatalf("Exists(k2) = %v, %v, want false", ok, err)
	}
}

// TestCheckMissingBucket checks the connection test.
func TestCheckMissingBucket(t *testing.T) {
	u := newUploader(&fakeObjectAPI{bucket: false}, testCreds(), nil)
	if err := u.Check(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

// TestNewUploaderRejectsIncompleteCredentials checks input validation.
func TestNewUploaderRejectsIncompleteCredentials(t *testing.T) {
	creds := testCreds()
	creds.Bucket = ""
	_, err := NewUploader(creds, nil)
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "storage.bucket" {
		t.Fatalf("NewUploader() error = %v, want bucket validation error", err)
	}
}

// sinkFunc adapts a func to progress.Sink.
type sinkFunc func(int, string)

// Report calls f.
func (f sinkFunc) Report(p int, m string) { f(p, m) }
