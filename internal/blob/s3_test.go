package blob

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, cfg S3Config) *S3Store {
	t.Helper()
	if cfg.Bucket == "" {
		cfg.Bucket = "renders"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	store, err := NewS3Store(cfg)
	require.NoError(t, err)
	return store
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("facecam bytes"))
	}))
	defer srv.Close()

	store := newTestStore(t, S3Config{})
	data, err := store.Fetch(context.Background(), srv.URL, MaxFacecamBytes)
	require.NoError(t, err)
	assert.Equal(t, []byte("facecam bytes"), data)
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	store := newTestStore(t, S3Config{})
	_, err := store.Fetch(context.Background(), srv.URL, MaxFacecamBytes)
	require.ErrorIs(t, err, ErrBadStatus)
	assert.Equal(t, 1, hits)
}

func TestFetchEnforcesSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	store := newTestStore(t, S3Config{})
	_, err := store.Fetch(context.Background(), srv.URL, 16)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestPurgePostsURLs(t *testing.T) {
	var got map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	store := newTestStore(t, S3Config{PurgeEndpoint: srv.URL})
	urls := []string{"https://cdn.example.com/renders/a.mp4", "https://cdn.example.com/renders/a.jpg"}
	require.NoError(t, store.Purge(context.Background(), urls))
	assert.Equal(t, urls, got["urls"])
}

func TestPurgeWithoutEndpointIsNoOp(t *testing.T) {
	store := newTestStore(t, S3Config{})
	assert.NoError(t, store.Purge(context.Background(), []string{"https://x"}))
}

func TestPurgeBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := newTestStore(t, S3Config{PurgeEndpoint: srv.URL})
	assert.ErrorIs(t, store.Purge(context.Background(), []string{"https://x"}), ErrBadStatus)
}

func TestArtifactKeys(t *testing.T) {
	assert.Equal(t, "renders/pub_abc.mp4", VideoKey("pub_abc"))
	assert.Equal(t, "renders/pub_abc.jpg", ThumbnailKey("pub_abc"))
}

func TestCDNBaseDefaultsToBucketHost(t *testing.T) {
	store := newTestStore(t, S3Config{Bucket: "clips", Region: "eu-west-1"})
	assert.Equal(t, "https://clips.s3.eu-west-1.amazonaws.com", store.cdnBase)

	store = newTestStore(t, S3Config{CDNBaseURL: "https://cdn.example.com/"})
	assert.Equal(t, "https://cdn.example.com", store.cdnBase)
}
