//go:build integration

package smb2

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/smbconn/pkg/identity"
	"github.com/marmos91/smbconn/pkg/smbconn"
	"github.com/marmos91/smbconn/pkg/transport"
)

const (
	sambaUser     = "alice"
	sambaPassword = "alicepass"
	sambaShare    = "public"
)

// sambaServer starts a Samba container, or uses SMB_TEST_SERVER (host:port)
// when set. The server must export sambaShare to sambaUser.
func sambaServer(t *testing.T) string {
	t.Helper()
	if addr := os.Getenv("SMB_TEST_SERVER"); addr != "" {
		return addr
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "dperson/samba:latest",
			ExposedPorts: []string{"445/tcp"},
			Cmd: []string{
				"-p",
				"-u", sambaUser + ";" + sambaPassword,
				"-s", sambaShare + ";/srv;yes;no;no;" + sambaUser,
			},
			WaitingFor: wait.ForListeningPort("445/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start samba container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "445")
	require.NoError(t, err)
	return net.JoinHostPort(host, port.Port())
}

func account() identity.Account {
	return identity.Account{User: sambaUser, Password: sambaPassword}
}

func TestIntegration_SessionAndTree(t *testing.T) {
	server := sambaServer(t)
	tr := New(DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sh, err := tr.OpenSession(ctx, transport.OpenRequest{Server: server, Account: account()})
	require.NoError(t, err)
	assert.Equal(t, server, sh.Server())
	assert.NotEmpty(t, sh.LocalAddr())

	tid, err := tr.TreeConnect(ctx, sh, sambaShare)
	require.NoError(t, err)
	assert.NotEqual(t, transport.TreeIDUnknown, tid)

	require.NoError(t, tr.TreeDisconnect(ctx, sh, tid))
	assert.Error(t, tr.TreeDisconnect(ctx, sh, tid), "second disconnect of the same tree")

	_, err = tr.TreeConnect(ctx, sh, "no-such-share")
	assert.Error(t, err)

	require.NoError(t, tr.CloseSession(ctx, sh))
}

func TestIntegration_BadPassword(t *testing.T) {
	server := sambaServer(t)
	tr := New(Config{MaxRetries: 0})

	_, err := tr.OpenSession(context.Background(), transport.OpenRequest{
		Server:  server,
		Account: identity.Account{User: sambaUser, Password: "wrong"},
	})
	assert.Error(t, err)
}

func TestIntegration_ManagerLifecycle(t *testing.T) {
	server := sambaServer(t)
	mgr := smbconn.NewManager(New(DefaultConfig()))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cred := identity.Cred{UID: 1000, GID: 100}
	spec := smbconn.SessionSpec{
		Server:  server,
		Account: account(),
		Owner:   smbconn.AnyOwner,
		Group:   smbconn.AnyGroup,
		Mode:    0o700,
		Create:  true,
	}
	shareSpec := &smbconn.ShareSpec{Name: sambaShare, Owner: smbconn.AnyOwner, Group: smbconn.AnyGroup, Mode: 0o755}

	sess, share, err := mgr.LookupOrCreate(ctx, cred, spec, shareSpec)
	require.NoError(t, err)
	assert.True(t, share.IsValid())

	require.NoError(t, sess.Reconnect(ctx))
	assert.False(t, share.IsValid(), "reconnect invalidates trees")
	require.NoError(t, share.Revalidate(ctx))
	assert.True(t, share.IsValid())

	records, err := mgr.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, sambaShare, records[1].Name)

	require.NoError(t, share.Rele())
	require.NoError(t, sess.Rele())
	assert.Equal(t, 0, mgr.Len())
}
