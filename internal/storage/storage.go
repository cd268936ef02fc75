// Package storage archives uploaded homework photos.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"edu-ai-gateway/internal/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidImage means an image payload could not be decoded.
var ErrInvalidImage = errors.New("invalid image data")

// Archiver stores an object and returns its URL.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// NopArchiver discards everything.
type NopArchiver struct{}

// Put implements Archiver.
func (NopArchiver) Put(context.Context, string, []byte, string) (string, error) {
	return "", nil
}

// OSSArchiver stores objects in an Aliyun OSS bucket.
type OSSArchiver struct {
	bucket *oss.Bucket
	cfg    config.OSSConfig
	logger *zap.Logger
}

// NewOSSArchiver creates an archiver for cfg.Bucket.
func NewOSSArchiver(cfg *config.OSSConfig, logger *zap.Logger, opts ...oss.ClientOption) (*OSSArchiver, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret, opts...)
	if err != nil {
		return nil, fmt.Errorf("create oss client: %w", err)
	}

	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("open oss bucket: %w", err)
	}

	return &OSSArchiver{bucket: bucket, cfg: *cfg, logger: logger}, nil
}

// Put uploads data under the configured prefix.
func (a *OSSArchiver) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey := path.Join(a.cfg.Prefix, key)

	err := a.bucket.PutObject(objectKey, bytes.NewReader(data),
		oss.ContentType(contentType),
		oss.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectKey, err)
	}

	a.logger.Debug("object archived", zap.String("key", objectKey), zap.Int("bytes", len(data)))
	return a.objectURL(objectKey), nil
}

// objectURL renders https://{bucket}.{endpoint}/{key}.
func (a *OSSArchiver) objectURL(objectKey string) string {
	endpoint := strings.TrimPrefix(a.cfg.Endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return fmt.Sprintf("https://%s.%s/%s", a.cfg.Bucket, endpoint, objectKey)
}

// New returns an OSS archiver when cfg is complete and a NopArchiver otherwise.
func New(cfg *config.OSSConfig, logger *zap.Logger) (Archiver, error) {
	if !cfg.Enabled() {
		logger.Info("photo archive disabled")
		return NopArchiver{}, nil
	}
	return NewOSSArchiver(cfg, logger)
}

// DecodeImage accepts raw base64 or a data URI and returns the bytes and
// content type.
func DecodeImage(payload string) ([]byte, string, error) {
	contentType := "image/jpeg"
	encoded := payload

	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("%w: malformed data URI", ErrInvalidImage)
		}
		contentType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		encoded = body
	}

	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%w: unsupported content type %q", ErrInvalidImage, contentType)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	return data, contentType, nil
}

// DataURI renders image bytes as a data URI for multimodal requests.
func DataURI(data []byte, contentType string) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// PhotoKey builds photos/{user}/{date}/{random}.{ext}.
func PhotoKey(userID uuid.UUID, contentType string, at time.Time) string {
	ext := "jpg"
	switch contentType {
	case "image/png":
		ext = "png"
	case "image/webp":
		ext = "webp"
	case "image/gif":
		ext = "gif"
	}
	return path.Join("photos", userID.String(), at.Format("2006-01-02"), uuid.NewString()+"."+ext)
}
