// Package storage uploads local files to an S3-compatible bucket and
// returns their public URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"audio-workbench/internal/domain"
	"audio-workbench/internal/progress"
)

// DefaultPrefix is the key prefix used when credentials set none.
const DefaultPrefix = "audio_transcription"

// DefaultProgressInterval throttles byte progress reports.
const DefaultProgressInterval = 500 * time.Millisecond

// objectAPI is the subset of *minio.Client the uploader needs.
type objectAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// Object describes one uploaded file.
type Object struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Uploader puts files into one bucket.
type Uploader struct {
	api      objectAPI
	bucket   string
	endpoint string
	prefix   string
	interval time.Duration
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// NewUploader validates creds and connects a minio client to the endpoint.
func NewUploader(creds domain.StorageCredentials, logger *slog.Logger) (*Uploader, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	host, secure := splitEndpoint(creds.Endpoint)
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, ""),
		Secure: secure,
		Region: creds.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return newUploader(client, creds, logger), nil
}

func newUploader(api objectAPI, creds domain.StorageCredentials, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	host, _ := splitEndpoint(creds.Endpoint)
	prefix := strings.Trim(creds.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Uploader{
		api:      api,
		bucket:   creds.Bucket,
		endpoint: host,
		prefix:   prefix,
		interval: DefaultProgressInterval,
		now:      time.Now,
		newID:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:8] },
		logger:   logger.With("component", "storage"),
	}
}

// Check verifies the bucket is reachable with the configured credentials.
func (u *Uploader) Check(ctx context.Context) error {
	ok, err := u.api.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", u.bucket)
	}
	return nil
}

// Exists reports whether key is present in the bucket.
func (u *Uploader) Exists(ctx context.Context, key string) (bool, error) {
	_, err := u.api.StatObject(ctx, u.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

// Upload puts the file at path under a generated key and returns its URL.
// Byte progress is reported to sink at most once per interval.
func (u *Uploader) Upload(ctx context.Context, path string, sink progress.Sink) (Object, error) {
	file, err := os.Open(path)
	if err != nil {
		return Object{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return Object{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if stat.IsDir() {
		return Object{}, &domain.ValidationError{Field: "path", Message: path + " is a directory"}
	}

	key := ObjectKey(u.prefix, filepath.Base(path), u.now(), u.newID())
	counter := &byteCounter{
		total:    stat.Size(),
		throttle: progress.NewThrottle(sink, u.interval, "uploading "+filepath.Base(path)),
	}

	u.logger.Info("uploading object", "bucket", u.bucket, "key", key, "size", stat.Size())
	_, err = u.api.PutObject(ctx, u.bucket, key, file, stat.Size(), minio.PutObjectOptions{
		ContentType: contentType(path),
		Progress:    counter,
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	counter.throttle.Update(stat.Size(), stat.Size())

	return Object{Key: key, URL: u.PublicURL(key), Size: stat.Size()}, nil
}

// PublicURL returns https://{bucket}.{endpoint}/{key}.
func (u *Uploader) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", u.bucket, u.endpoint, key)
}

// ObjectKey builds {prefix}/{YYYYMMDD_HHMMSS}_{id}_{filename}.
func ObjectKey(prefix, filename string, at time.Time, id string) string {
	name := fmt.Sprintf("%s_%s_%s", at.Format("20060102_150405"), id, filename)
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// byteCounter receives the bytes minio has read from the source.
type byteCounter struct {
	done     atomic.Int64
	total    int64
	throttle *progress.Throttle
}

// Read counts len(p) transferred bytes.
func (c *byteCounter) Read(p []byte) (int, error) {
	n := c.done.Add(int64(len(p)))
	c.throttle.Update(n, c.total)
	return len(p), nil
}

// splitEndpoint strips an optional scheme and reports whether TLS is used.
func splitEndpoint(endpoint string) (string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	default:
		return strings.TrimSuffix(endpoint, "/"), true
	}
}

var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".pcm":  "audio/L16",
	".txt":  "text/plain; charset=utf-8",
}

// contentType maps the file extension to a MIME type.
func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := audioContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
