package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/smbconn/internal/adminapi/handlers"
	"github.com/marmos91/smbconn/pkg/config"
	"github.com/marmos91/smbconn/pkg/identity"
	"github.com/marmos91/smbconn/pkg/smbconn"
	"github.com/marmos91/smbconn/pkg/transport/memory"
)

const (
	testSecret   = "test-secret-key-for-testing-only-32chars"
	testPassword = "correct horse battery"
)

type testEnv struct {
	srv *httptest.Server
	mgr *smbconn.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hash, err := identity.HashPassword(testPassword)
	require.NoError(t, err)

	mgr := smbconn.NewManager(memory.New())
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background(), true) })

	cfg := config.AdminConfig{
		Enabled: true,
		Port:    18080,
		JWT:     config.JWTConfig{Secret: testSecret, AccessTokenDuration: 15 * time.Minute},
		Users:   []config.AdminUser{{Username: "admin", PasswordHash: hash}},
	}
	s, err := NewServer(cfg, mgr)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, mgr: mgr}
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	body, _ := json.Marshal(handlers.LoginRequest{Username: "admin", Password: testPassword})
	resp, err := http.Post(e.srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lr handlers.LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
	require.NotEmpty(t, lr.AccessToken)
	return lr.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// connect creates a session with a share, both referenced until the test
// ends, as a mount would hold them.
func (e *testEnv) connect(t *testing.T) uint64 {
	t.Helper()
	spec := smbconn.SessionSpec{
		Server:  "10.0.0.5",
		Account: identity.Account{User: "alice", Password: "secret"},
		Owner:   smbconn.AnyOwner,
		Group:   smbconn.AnyGroup,
		Create:  true,
	}
	share := &smbconn.ShareSpec{Name: "public", Owner: smbconn.AnyOwner, Group: smbconn.AnyGroup, Mode: 0o644}
	s, sh, err := e.mgr.LookupOrCreate(context.Background(), identity.Cred{UID: 1000, GID: 100}, spec, share)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sh.Rele()
		_ = s.Rele()
	})
	return s.ID()
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body handlers.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
}

func TestLogin_Rejected(t *testing.T) {
	e := newTestEnv(t)

	for _, req := range []handlers.LoginRequest{
		{Username: "admin", Password: "wrong password"},
		{Username: "nobody", Password: testPassword},
	} {
		body, _ := json.Marshal(req)
		resp, err := http.Post(e.srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, handlers.ContentTypeProblemJSON, resp.Header.Get("Content-Type"))
	}

	resp, err := http.Post(e.srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessions_RequireToken(t *testing.T) {
	e := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/v1/sessions", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/v1/sessions", "garbage").StatusCode)
}

func TestSessions_ListAndGet(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)
	id := e.connect(t)

	resp := e.do(t, http.MethodGet, "/api/v1/sessions", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []smbconn.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 2)
	assert.Equal(t, "session", records[0].Level)
	assert.Equal(t, "10.0.0.5:445", records[0].Server)
	assert.Equal(t, 2, records[0].UseCount, "caller plus the share")
	assert.Equal(t, "share", records[1].Level)
	assert.Equal(t, "public", records[1].Name)
	assert.Equal(t, id, records[1].ParentID)

	resp = e.do(t, http.MethodGet, "/api/v1/sessions/"+itoa(id), token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var one []smbconn.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&one))
	assert.Equal(t, records, one)

	shareID := records[1].ID
	require.NotEqual(t, id, shareID)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/sessions/"+itoa(shareID), token).StatusCode,
		"a share id does not name a session")
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/sessions/999", token).StatusCode)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/sessions/abc", token).StatusCode)
}

func TestSessions_ForgetShareThenSession(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)
	id := e.connect(t)

	resp := e.do(t, http.MethodDelete, "/api/v1/sessions/"+itoa(id)+"/shares/public", token)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/v1/sessions/"+itoa(id)+"/shares/public", token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem handlers.Problem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "NotFound", problem.Code)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/api/v1/sessions/"+itoa(id), token).StatusCode)
	assert.Equal(t, 0, e.mgr.Len())
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/api/v1/sessions/"+itoa(id), token).StatusCode)
}

func TestSessions_Reconnect(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)
	id := e.connect(t)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/api/v1/sessions/"+itoa(id)+"/reconnect", token).StatusCode)

	resp := e.do(t, http.MethodGet, "/api/v1/sessions/"+itoa(id), token)
	var records []smbconn.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 2)
	assert.Equal(t, uint32(2), records[0].Generation)
	assert.False(t, records[1].Valid, "share revalidates lazily")
}

func TestMetrics_DisabledIs404(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/metrics", "").StatusCode)
}

func TestNewServer_ShortSecret(t *testing.T) {
	_, err := NewServer(config.AdminConfig{JWT: config.JWTConfig{Secret: "short"}}, smbconn.NewManager(memory.New()))
	assert.Error(t, err)
}

func itoa(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
