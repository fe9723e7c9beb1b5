package s3blob_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3blob "github.com/alanyoungcy/polydesk/internal/blob/s3"
	"github.com/alanyoungcy/polydesk/internal/domain"
)

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", s3blob.NormaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "http://minio:9000", s3blob.NormaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", s3blob.NormaliseEndpoint("minio:9000", true))
}

func TestNew_RequiresBucketAndRegion(t *testing.T) {
	_, err := s3blob.New(context.Background(), s3blob.ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = s3blob.New(context.Background(), s3blob.ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}

// fakeS3 serves the handful of path-style requests the writer and reader
// issue.
func fakeS3(t *testing.T) (*httptest.Server, map[string]string) {
	t.Helper()
	objects := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/exports/")
		switch {
		case r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			objects[key] = string(body)
			w.Header().Set("ETag", `"etag"`)
		case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
			w.Header().Set("Content-Type", "application/xml")
			var b strings.Builder
			b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><Name>exports</Name><IsTruncated>false</IsTruncated>`)
			for k, v := range objects {
				b.WriteString("<Contents><Key>" + k + "</Key><Size>" + strconv.Itoa(len(v)) + "</Size><LastModified>2026-01-02T03:04:05.000Z</LastModified></Contents>")
			}
			b.WriteString(`</ListBucketResult>`)
			io.WriteString(w, b.String())
		case r.Method == http.MethodGet:
			v, ok := objects[key]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
				return
			}
			io.WriteString(w, v)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, objects
}

func TestWriterReader_RoundTrip(t *testing.T) {
	srv, objects := fakeS3(t)
	ctx := context.Background()

	client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "exports",
		AccessKey:      "ak",
		SecretKey:      "sk",
		ForcePathStyle: true,
	})
	require.NoError(t, err)

	w := s3blob.NewWriter(client)
	require.NoError(t, w.Put(ctx, "orders/a.jsonl", strings.NewReader("{\"id\":1}\n"), "application/x-ndjson"))
	assert.Equal(t, "{\"id\":1}\n", objects["orders/a.jsonl"])

	r := s3blob.NewReader(client)
	infos, err := r.List(ctx, "orders/")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "orders/a.jsonl", infos[0].Path)
	assert.Equal(t, int64(9), infos[0].Size)

	body, err := r.Get(ctx, "orders/a.jsonl")
	require.NoError(t, err)
	defer body.Close()
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":1}\n", string(got))

	_, err = r.Get(ctx, "orders/missing.jsonl")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
