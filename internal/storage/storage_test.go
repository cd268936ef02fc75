package storage

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"edu-ai-gateway/internal/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var png = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func TestDecodeImage(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(png)

	tests := []struct {
		name        string
		payload     string
		contentType string
		wantErr     bool
	}{
		{name: "data uri", payload: "data:image/png;base64," + encoded, contentType: "image/png"},
		{name: "raw base64", payload: encoded, contentType: "image/jpeg"},
		{name: "not base64", payload: "data:image/png;base64,@@@", wantErr: true},
		{name: "not an image", payload: "data:text/plain;base64," + encoded, wantErr: true},
		{name: "missing comma", payload: "data:image/png;base64", wantErr: true},
		{name: "not base64 encoded uri", payload: "data:image/png," + encoded, wantErr: true},
		{name: "empty", payload: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, ct, err := DecodeImage(tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidImage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, png, data)
			assert.Equal(t, tt.contentType, ct)
		})
	}
}

func TestDataURIRoundTrip(t *testing.T) {
	data, ct, err := DecodeImage(DataURI(png, "image/png"))
	require.NoError(t, err)
	assert.Equal(t, png, data)
	assert.Equal(t, "image/png", ct)
}

func TestPhotoKey(t *testing.T) {
	user := uuid.New()
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	key := PhotoKey(user, "image/png", at)

	assert.True(t, strings.HasPrefix(key, "photos/"+user.String()+"/2026-05-01/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.True(t, strings.HasSuffix(PhotoKey(user, "image/heic", at), ".jpg"))
}

func TestNewDisabled(t *testing.T) {
	archiver, err := New(&config.OSSConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, NopArchiver{}, archiver)

	url, err := archiver.Put(context.Background(), "k", png, "image/png")
	assert.NoError(t, err)
	assert.Empty(t, url)
}

func TestOSSArchiverPut(t *testing.T) {
	var gotMethod, gotPath, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.OSSConfig{
		Endpoint:        srv.URL,
		AccessKeyID:     "ak",
		AccessKeySecret: "sk",
		Bucket:          "homework",
		Prefix:          "archive/",
	}
	archiver, err := NewOSSArchiver(cfg, zap.NewNop(), oss.UseCname(true), oss.EnableCRC(false))
	require.NoError(t, err)

	url, err := archiver.Put(context.Background(), "photos/u/1.png", png, "image/png")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/archive/photos/u/1.png", gotPath)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, png, gotBody)
	assert.True(t, strings.HasSuffix(url, "/archive/photos/u/1.png"))
	assert.True(t, strings.HasPrefix(url, "https://homework."))
}
