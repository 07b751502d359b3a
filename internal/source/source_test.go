package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdftrio/internal/config"
)

func testConfig() config.SourceConfig {
	return config.SourceConfig{FetchTimeout: 5 * time.Second, MaxBytes: 1024}
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/paper.pdf":
			w.Write([]byte("%PDF-1.4 body"))
		case "/big.pdf":
			w.Write([]byte(strings.Repeat("x", 2048)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(testConfig())

	data, err := f.Fetch(context.Background(), srv.URL+"/paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/big.pdf")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 404")
}

func TestFetchLocalFilesNeedOptIn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o644))

	f := New(testConfig())
	_, err := f.Fetch(context.Background(), "file://"+path)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, f.Supported(path))

	f.LocalFiles = true
	data, err := f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	data, err = f.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	_, err = f.Fetch(context.Background(), filepath.Dir(path))
	assert.Error(t, err)
}

func TestSplitS3(t *testing.T) {
	b, k, err := splitS3("s3://papers/2020/x.pdf")
	require.NoError(t, err)
	assert.Equal(t, "papers", b)
	assert.Equal(t, "2020/x.pdf", k)

	for _, bad := range []string{"s3://", "s3://bucket", "s3://bucket/", "s3:///key"} {
		_, _, err := splitS3(bad)
		assert.Error(t, err, bad)
	}
}

// fakeS3 serves path-style HEAD and ranged GET for a set of objects.
func fakeS3(t *testing.T, objects map[string][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method != http.MethodHead {
				fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(http.StatusOK)
			return
		}
		start, end := 0, len(body)-1
		if rng := r.Header.Get("Range"); rng != "" {
			var a, b int
			if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &a, &b); err == nil {
				start = a
				if b < end {
					end = b
				}
			}
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(body)))
		w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[start : end+1])
	}))
}

func TestFetchS3(t *testing.T) {
	srv := fakeS3(t, map[string][]byte{
		"/papers/ok.pdf":  []byte("%PDF-1.5 s3 body"),
		"/papers/big.pdf": []byte(strings.Repeat("y", 4096)),
	})
	defer srv.Close()

	cfg := testConfig()
	cfg.S3Region = "us-east-1"
	cfg.S3Endpoint = srv.URL
	cfg.S3AccessKey = "test"
	cfg.S3SecretKey = "secret"
	f := New(cfg)

	data, err := f.Fetch(context.Background(), "s3://papers/ok.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.5 s3 body", string(data))

	_, err = f.Fetch(context.Background(), "s3://papers/big.pdf")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = f.Fetch(context.Background(), "s3://papers/none.pdf")
	assert.Error(t, err)
}
