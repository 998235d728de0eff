package oauth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joshp123/gohome-lyric/internal/config"
)

var ErrBlobNotFound = errors.New("oauth blob not found")

// BlobStore mirrors OAuth state to object storage so a fresh host can
// recover the rotating refresh token.
type BlobStore interface {
	Load(ctx context.Context, provider string) ([]byte, error)
	Save(ctx context.Context, provider string, data []byte) error
}

// NewBlobStore returns an S3Store, or a NopStore when no endpoint is configured.
func NewBlobStore(cfg config.OAuthConfig) (BlobStore, error) {
	if strings.TrimSpace(cfg.BlobEndpoint) == "" {
		return NopStore{}, nil
	}
	return NewS3Store(cfg)
}

// NopStore keeps state on local disk only.
type NopStore struct{}

func (NopStore) Load(context.Context, string) ([]byte, error) { return nil, ErrBlobNotFound }

func (NopStore) Save(context.Context, string, []byte) error { return nil }

// maxStateBytes bounds a mirrored state object; real ones are a few hundred bytes.
const maxStateBytes = 64 << 10

// S3Store keeps one JSON object per provider under {prefix}/{provider}.json.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3Store(cfg config.OAuthConfig) (*S3Store, error) {
	bucket := strings.TrimSpace(cfg.BlobBucket)
	if bucket == "" {
		return nil, fmt.Errorf("oauth.blob_bucket is required")
	}
	host, secure, err := parseEndpoint(cfg.BlobEndpoint)
	if err != nil {
		return nil, err
	}
	creds, err := blobCredentials(cfg.BlobAccessKeyFile, cfg.BlobSecretKeyFile)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: strings.TrimSpace(cfg.BlobRegion),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	prefix := strings.Trim(strings.TrimSpace(cfg.BlobPrefix), "/")
	if prefix == "" {
		prefix = config.DefaultOAuthPrefix
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3Store) Load(ctx context.Context, provider string) ([]byte, error) {
	key := s.key(provider)
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, blobError("stat", key, err)
	}
	if info.Size > maxStateBytes {
		return nil, fmt.Errorf("blob %s is %d bytes, larger than a state file", key, info.Size)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, blobError("get", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxStateBytes))
	if err != nil {
		return nil, blobError("read", key, err)
	}
	return data, nil
}

func (s *S3Store) Save(ctx context.Context, provider string, data []byte) error {
	key := s.key(provider)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"schema-version": strconv.Itoa(SchemaVersion)},
	})
	if err != nil {
		return blobError("put", key, err)
	}
	return nil
}

func (s *S3Store) key(provider string) string {
	return path.Join(s.prefix, provider+".json")
}

func blobError(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrBlobNotFound
	}
	return fmt.Errorf("blob %s %s: %w", op, key, err)
}

// parseEndpoint accepts host[:port] or an http(s) URL. A bare host means TLS.
func parseEndpoint(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("oauth.blob_endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse blob endpoint: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false, fmt.Errorf("invalid blob endpoint %q", raw)
	}
	return u.Host, u.Scheme == "https", nil
}

func blobCredentials(accessKeyFile, secretKeyFile string) (*credentials.Credentials, error) {
	if strings.TrimSpace(accessKeyFile) == "" || strings.TrimSpace(secretKeyFile) == "" {
		return nil, fmt.Errorf("blob access and secret key files are required")
	}
	accessKey, err := readSecretFile(accessKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob access key: %w", err)
	}
	secretKey, err := readSecretFile(secretKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob secret key: %w", err)
	}
	return credentials.NewStaticV4(accessKey, secretKey, ""), nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return secret, nil
}
