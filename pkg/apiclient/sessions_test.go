package apiclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/smbconn/pkg/adminapi"
	"github.com/marmos91/smbconn/pkg/config"
	"github.com/marmos91/smbconn/pkg/identity"
	"github.com/marmos91/smbconn/pkg/smbconn"
	"github.com/marmos91/smbconn/pkg/transport/memory"
)

// newAdminServer runs the real admin API over a memory transport and
// returns a logged-in client plus the manager behind it.
func newAdminServer(t *testing.T) (*Client, *smbconn.Manager) {
	t.Helper()

	hash, err := identity.HashPassword("hunter2hunter2")
	require.NoError(t, err)

	mgr := smbconn.NewManager(memory.New())
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background(), true) })

	s, err := adminapi.NewServer(config.AdminConfig{
		Enabled: true,
		JWT:     config.JWTConfig{Secret: "apiclient-test-secret-0123456789abcdef", AccessTokenDuration: time.Minute},
		Users:   []config.AdminUser{{Username: "ops", PasswordHash: hash}},
	}, mgr)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	client := New(srv.URL)
	tok, err := client.Login(context.Background(), "ops", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	return client.WithToken(tok.AccessToken), mgr
}

func mount(t *testing.T, mgr *smbconn.Manager, share string) *smbconn.Session {
	t.Helper()
	spec := smbconn.SessionSpec{
		Server:  "files.example.com",
		Account: identity.Account{User: "svc", Domain: "CORP", Password: "pw"},
		Owner:   smbconn.AnyOwner,
		Group:   smbconn.AnyGroup,
		Create:  true,
	}
	ss := &smbconn.ShareSpec{Name: share, Owner: smbconn.AnyOwner, Group: smbconn.AnyGroup, Mode: 0o755}
	s, sh, err := mgr.LookupOrCreate(context.Background(), identity.Cred{UID: 0, GID: 0}, spec, ss)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sh.Rele()
		_ = s.Rele()
	})
	return s
}

func TestSessions_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client, mgr := newAdminServer(t)
	s := mount(t, mgr, "data")

	records, err := client.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "files.example.com:445", records[0].Server)
	assert.Equal(t, "CORP", records[0].Domain)
	assert.Equal(t, "data", records[1].Name)

	records, err = client.GetSession(ctx, s.ID())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, s.ID(), records[0].ID)

	require.NoError(t, client.ReconnectSession(ctx, s.ID()))
	records, err = client.GetSession(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), records[0].Generation)

	require.NoError(t, client.ForgetShare(ctx, s.ID(), "data"))
	err = client.ForgetShare(ctx, s.ID(), "data")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsNotFound())

	require.NoError(t, client.ForgetSession(ctx, s.ID()))
	records, err = client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = client.GetSession(ctx, s.ID())
	apiErr, ok = AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsNotFound())
}

func TestSessions_Unauthenticated(t *testing.T) {
	ctx := context.Background()
	client, _ := newAdminServer(t)

	_, err := client.WithToken("").ListSessions(ctx)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsAuthError())
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	client, mgr := newAdminServer(t)
	mount(t, mgr, "data")

	h, err := client.WithToken("").Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "smbconn", h.Data.Service)
	assert.Equal(t, 1, h.Data.Sessions)
	assert.False(t, h.Data.StartedAt.IsZero())
}
