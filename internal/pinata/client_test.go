package pinata

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestClient_Pin(t *testing.T) {
	var gotAuth string
	var gotFile []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/pinFileToIPFS", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotFile, err = io.ReadAll(f)
		require.NoError(t, err)

		assert.NotEmpty(t, r.FormValue("pinataOptions"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"IpfsHash":"bafytestcid"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "secret-token", 5*time.Second)

	cid, err := c.Pin(context.Background(), writeTempFile(t, "hello bytes"))
	require.NoError(t, err)
	assert.Equal(t, "bafytestcid", cid)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, []byte("hello bytes"), gotFile)
}

func TestClient_Pin_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "t", 5*time.Second)

	_, err := c.Pin(context.Background(), writeTempFile(t, "x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProvider), "provider failures must be retriable")
}

func TestClient_Pin_MissingLocalFile(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "http://127.0.0.1:0", "t", time.Second)

	_, err := c.Pin(context.Background(), filepath.Join(t.TempDir(), "gone"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProvider), "a missing local file is not a provider error")
}

func TestClient_Unpin(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "t", 5*time.Second)
	require.NoError(t, c.Unpin(context.Background(), "bafyabc"))
	assert.Equal(t, "/unpin/bafyabc", gotPath)
}

func TestClient_Unpin_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "t", 5*time.Second)
	err := c.Unpin(context.Background(), "bafyabc")
	assert.True(t, errors.Is(err, ErrProvider))
}

func TestClient_FetchStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bafyabc", r.URL.Path)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "t", 5*time.Second)

	rc, info, err := c.FetchStream(context.Background(), "bafyabc")
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, int64(len("png-bytes")), info.Size)
}

func TestClient_FetchStream_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "t", 5*time.Second)
	_, _, err := c.FetchStream(context.Background(), "bafyabc")
	assert.True(t, errors.Is(err, ErrProvider))
}
