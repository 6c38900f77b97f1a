package generation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/internal/generation"
)

func TestLocalStore_Put(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := generation.NewLocalStore(dir)

	uri, err := store.Put(context.Background(), "agent/c1/storyboard.json", []byte(`{}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "storage://agent/c1/storyboard.json", uri)

	data, err := os.ReadFile(filepath.Join(dir, "agent", "c1", "storyboard.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))

	uri, err = store.Put(context.Background(), "../../etc/passwd", []byte("x"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "storage://etc/passwd", uri)
	assert.FileExists(t, filepath.Join(dir, "etc", "passwd"))

	_, err = store.Put(context.Background(), "/", nil, "")
	require.ErrorIs(t, err, generation.ErrInvalidKey)
}

func TestS3Store_Put(t *testing.T) {
	t.Parallel()

	var (
		mu          sync.Mutex
		gotMethod   string
		gotPath     string
		contentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotMethod, gotPath, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	store, err := generation.NewS3Store(context.Background(), generation.S3Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		Bucket:          "media",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Prefix:          "drafts/",
	}, logger.NewNop())
	require.NoError(t, err)

	uri, err := store.Put(context.Background(), "agent/c1/storyboard.json", []byte(`{"scenes":[]}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "s3://media/drafts/agent/c1/storyboard.json", uri)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/media/drafts/agent/c1/storyboard.json", gotPath)
	assert.Equal(t, "application/json", contentType)
}

func TestS3Store_PutFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	}))
	t.Cleanup(srv.Close)

	store, err := generation.NewS3Store(context.Background(), generation.S3Config{
		Endpoint: srv.URL, Region: "us-east-1", Bucket: "media",
		AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret",
	}, logger.NewNop())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "k.json", []byte(`{}`), "application/json")
	require.Error(t, err)

	_, err = generation.NewS3Store(context.Background(), generation.S3Config{}, logger.NewNop())
	require.Error(t, err)
}
