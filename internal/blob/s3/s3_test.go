package s3blob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu    sync.Mutex
	paths []string
	body  []byte
	ctype string
}

func (w *recordingWriter) Put(_ context.Context, p string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths = append(w.paths, p)
	w.body = b
	w.ctype = contentType
	return nil
}

func TestArchiverKeyLayout(t *testing.T) {
	w := &recordingWriter{}
	a := NewArchiver(w, "/walletlink/")
	a.now = func() time.Time { return time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC) }

	err := a.Archive(context.Background(), KindOrder, "0xab/cd", map[string]string{"orderId": "0xab"})
	require.NoError(t, err)
	require.Len(t, w.paths, 1)
	assert.Equal(t, "walletlink/orders/2026/03/04/0xab_cd.json", w.paths[0])
	assert.Equal(t, "application/json", w.ctype)
	assert.JSONEq(t, `{"orderId":"0xab"}`, string(w.body))
}

func TestWriterPutsObject(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, b
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "artifacts",
		AccessKey:      "AKIDEXAMPLE",
		SecretKey:      "secret",
		ForcePathStyle: true,
	})
	require.NoError(t, err)

	err = NewWriter(c).Put(context.Background(), "links/u1.json", bytes.NewReader([]byte(`{"ok":true}`)), "application/json")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/artifacts/links/u1.json", path)
	assert.Contains(t, string(body), `{"ok":true}`)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	require.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://r2.example.com", normaliseEndpoint("https://r2.example.com", false))
}
