package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskhub/pkg/apierr"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey("attachments/7", "Design Spec.PDF")
	assert.True(t, strings.HasPrefix(key, "attachments/7/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotEqual(t, key, ObjectKey("attachments/7", "Design Spec.PDF"))

	assert.NotContains(t, ObjectKey("avatars", "x."+strings.Repeat("a", 40)), "aaaa")
}

func TestFileSystemUploader(t *testing.T) {
	root := t.TempDir()
	u, err := NewFileSystemUploader(root, "http://localhost:8080/static/")
	require.NoError(t, err)
	ctx := context.Background()

	obj, err := u.Upload(ctx, "attachments/1/a.txt", "text/plain", strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/static/attachments/1/a.txt", obj.URL)
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, "text/plain", obj.ContentType)

	data, err := os.ReadFile(filepath.Join(root, "attachments/1/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	t.Run("path traversal stays inside root", func(t *testing.T) {
		obj, err := u.Upload(ctx, "../../escape.txt", "text/plain", strings.NewReader("x"), 1)
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(root, "escape.txt"))
		assert.NoError(t, err)
		assert.NotEmpty(t, obj.URL)
	})

	t.Run("empty key fails as upload error", func(t *testing.T) {
		_, err := u.Upload(ctx, "", "text/plain", strings.NewReader("x"), 1)
		assert.True(t, apierr.IsKind(err, apierr.KindUploadFailed))
	})

	require.NoError(t, u.Delete(ctx, "attachments/1/a.txt"))
	require.NoError(t, u.Delete(ctx, "attachments/1/a.txt"), "deleting twice is not an error")
	assert.NoError(t, u.HealthCheck(ctx))
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	fail    bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>InternalError</Code><Message>boom</Message></Error>`)
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3Uploader(t *testing.T) (*S3Uploader, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string]string)}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	u, err := NewS3Uploader(context.Background(), S3Config{
		Endpoint:       server.URL,
		Region:         "us-east-1",
		Bucket:         "attachments",
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	return u, fake
}

func TestS3Uploader(t *testing.T) {
	u, fake := newTestS3Uploader(t)
	ctx := context.Background()

	obj, err := u.Upload(ctx, "attachments/1/a.txt", "text/plain", strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(obj.URL, "/attachments/attachments/1/a.txt"))
	assert.Contains(t, fake.objects["/attachments/attachments/1/a.txt"], "hello")

	require.NoError(t, u.Delete(ctx, "attachments/1/a.txt"))
	assert.Empty(t, fake.objects)
	assert.NoError(t, u.HealthCheck(ctx))

	fake.fail = true
	_, err = u.Upload(ctx, "attachments/1/b.txt", "text/plain", strings.NewReader("x"), 1)
	require.Error(t, err)
	assert.True(t, apierr.IsKind(err, apierr.KindUploadFailed))
}

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com", publicBaseURL(S3Config{PublicBaseURL: "https://cdn.example.com/"}))
	assert.Equal(t, "http://minio:9000/b", publicBaseURL(S3Config{Endpoint: "http://minio:9000", Bucket: "b", ForcePathStyle: true}))
	assert.Equal(t, "https://b.storage.example", publicBaseURL(S3Config{Endpoint: "https://storage.example", Bucket: "b"}))
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com", publicBaseURL(S3Config{Bucket: "b", Region: "eu-west-1"}))
}
