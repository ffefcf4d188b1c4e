package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/nvoitko/inkwell/internal/common"
	"github.com/nvoitko/inkwell/internal/models"
)

func TestListNotes_ConditionalHeadersAndValidators(t *testing.T) {
	var gotETag, gotModified string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		gotModified = r.Header.Get("If-Modified-Since")
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Last-Modified", "Tue, 02 Jan 2024 00:00:00 GMT")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"notes": []map[string]any{{
				"id": "srv_1", "title": "alpha", "content": "body",
				"userId":    "user-1",
				"createdAt": time.Now().UTC(), "updatedAt": time.Now().UTC(),
			}},
			"total": 1,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	page, err := c.ListNotes(context.Background(), ListOptions{},
		Conditional{ETag: `"v1"`, LastModified: "Mon, 01 Jan 2024 00:00:00 GMT"})
	require.NoError(t, err)

	require.Equal(t, `"v1"`, gotETag)
	require.Equal(t, "Mon, 01 Jan 2024 00:00:00 GMT", gotModified)
	require.Len(t, page.Notes, 1)
	require.Equal(t, "alpha", page.Notes[0].Title)
	require.Equal(t, `"v2"`, page.Validators.ETag)
	require.Equal(t, "Tue, 02 Jan 2024 00:00:00 GMT", page.Validators.LastModified)
}

func TestListNotes_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.ListNotes(context.Background(), ListOptions{}, Conditional{ETag: `"v1"`})
	require.ErrorIs(t, err, common.ErrNotModified)
}

func TestListNotes_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"notes": []any{}, "total": 0})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	page, err := c.ListNotes(context.Background(), ListOptions{}, Conditional{})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Zero(t, page.Total)
}

func TestListNotes_FilterParams(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{"notes": []any{}, "total": 0})
	}))
	defer srv.Close()

	folder := "f1"
	starred := true
	c := NewHTTPClient(srv.URL)
	_, err := c.ListNotes(context.Background(),
		ListOptions{Filters: models.NoteFilters{FolderID: &folder, Starred: &starred}, Page: 2, PerPage: 50},
		Conditional{})
	require.NoError(t, err)
	require.Contains(t, query, "folderId=f1")
	require.Contains(t, query, "starred=true")
	require.Contains(t, query, "page=2")
	require.Contains(t, query, "perPage=50")
}

func TestTransportFailureMapsToNetworkUnavailable(t *testing.T) {
	// A closed server port is a transport error, not an HTTP status.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.ListNotes(context.Background(), ListOptions{}, Conditional{})
	require.ErrorIs(t, err, common.ErrNetworkUnavailable)

	err = c.DeleteNote(context.Background(), "srv_1")
	require.ErrorIs(t, err, common.ErrNetworkUnavailable)
}

func signedToken(t *testing.T, expIn time.Duration) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(expIn).Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func TestConcurrentRequestsRefreshTokenOnce(t *testing.T) {
	fresh := signedToken(t, time.Hour)

	var refreshes atomic.Int64
	var mu sync.Mutex
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessToken":  fresh,
			"refreshToken": "r2",
		})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	c.SetTokens(signedToken(t, 5*time.Second), "r1") // inside the leeway

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Ping(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int64(1), refreshes.Load())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)
	for _, auth := range seen {
		require.Equal(t, "Bearer "+fresh, auth)
	}
}

func TestDeleteNote_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	err := c.DeleteNote(context.Background(), "gone")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUnauthorizedSurfacesSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.ListNotes(context.Background(), ListOptions{}, Conditional{})
	require.ErrorIs(t, err, common.ErrUnauthorized)
}
