package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Options(t *testing.T) {
	c := New("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)

	hc := &http.Client{}
	c = New("http://nas:8080", WithHTTPClient(hc), WithUserAgent("smbconn-test/1"))
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, "smbconn-test/1", c.userAgent)

	c = New("http://nas:8080", WithTimeout(time.Second))
	assert.Equal(t, time.Second, c.httpClient.Timeout)
}

func TestWithToken_Copies(t *testing.T) {
	base := New("http://localhost:8080", WithUserAgent("smbconn-test/1"))
	authed := base.WithToken("tok")

	assert.Empty(t, base.token)
	assert.Equal(t, "tok", authed.token)
	assert.Equal(t, "smbconn-test/1", authed.userAgent)
	assert.Same(t, base.httpClient, authed.httpClient)

	base.SetToken("other")
	assert.Equal(t, "tok", authed.token)
}

func TestDo_Headers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "smbconn-cli", r.Header.Get("User-Agent"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if r.Method == http.MethodGet {
			assert.Empty(t, r.Header.Get("Content-Type"))
		} else {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL).WithToken("tok")
	ctx := context.Background()
	require.NoError(t, c.get(ctx, "/x", nil))
	require.NoError(t, c.post(ctx, "/x", map[string]string{"a": "b"}, nil))
}

func TestDo_DecodesAndPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Share string `json:"share"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in.Share})
	}))
	defer srv.Close()

	var out struct {
		Echo string `json:"echo"`
	}
	err := New(srv.URL).post(context.Background(), "/x", map[string]string{"share": "projects"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "projects", out.Echo)
}

func TestDo_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := New(srv.URL).get(ctx, "/slow", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, e *APIError)
	}{
		{
			name: "problem details",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(APIError{
					StatusCode: http.StatusNotFound,
					Title:      "Not Found",
					Detail:     "session 7 not found",
					Code:       "NotFound",
				})
			},
			check: func(t *testing.T, e *APIError) {
				assert.True(t, e.IsNotFound())
				assert.False(t, e.IsAuthError())
				assert.Equal(t, "NotFound: session 7 not found", e.Error())
			},
		},
		{
			name: "plain text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
			},
			check: func(t *testing.T, e *APIError) {
				assert.Equal(t, "Unauthorized", e.Title)
				assert.True(t, e.IsAuthError())
			},
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
			},
			check: func(t *testing.T, e *APIError) {
				assert.True(t, e.IsBusy())
				assert.Equal(t, "Conflict", e.Title)
			},
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			check: func(t *testing.T, e *APIError) {
				assert.True(t, e.IsPermissionDenied())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			err := New(srv.URL).delete(context.Background(), "/x")
			e, ok := AsAPIError(err)
			require.True(t, ok, "got %v", err)
			tt.check(t, e)
		})
	}
}
