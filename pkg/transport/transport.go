// Package transport defines the network collaborator the connection
// manager drives: opening and closing authenticated sessions and binding
// shares inside them.
//
// Implementations are called synchronously and may block for as long as
// the network does. The manager never calls them while holding a lock
// that other callers could be waiting on, and never retries; any retry
// policy belongs to the implementation.
package transport

import (
	"context"
	"fmt"

	"github.com/marmos91/smbconn/pkg/identity"
)

// TreeID is the server-assigned handle of a connected share.
type TreeID uint32

// TreeIDUnknown marks a share that has not completed tree-connect, or
// whose handle was invalidated by a session reconnect.
const TreeIDUnknown TreeID = 0xFFFF

func (t TreeID) String() string {
	if t == TreeIDUnknown {
		return "unknown"
	}
	return fmt.Sprintf("%#x", uint32(t))
}

// OpenRequest describes the session to establish.
type OpenRequest struct {
	// Server is the peer address, host:port.
	Server string

	// LocalAddr optionally pins the local endpoint, host or host:port.
	LocalAddr string

	// Account is the remote identity to authenticate as.
	Account identity.Account
}

// SessionHandle is an established session, owned by the Transport that
// returned it.
type SessionHandle interface {
	// Server is the peer address the session is connected to.
	Server() string

	// LocalAddr is the local endpoint actually used.
	LocalAddr() string
}

// Transport performs the blocking network operations of a connection.
type Transport interface {
	// OpenSession dials the server and authenticates.
	OpenSession(ctx context.Context, req OpenRequest) (SessionHandle, error)

	// CloseSession logs off and closes the connection. The handle is
	// unusable afterwards even when an error is returned.
	CloseSession(ctx context.Context, h SessionHandle) error

	// TreeConnect binds a share within the session.
	TreeConnect(ctx context.Context, h SessionHandle, share string) (TreeID, error)

	// TreeDisconnect releases a share bound by TreeConnect.
	TreeDisconnect(ctx context.Context, h SessionHandle, tid TreeID) error
}
