// Package identity holds the local identity a connection request runs
// under (Cred) and the remote account a session authenticates as
// (Account).
package identity

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNoProcessIdentity is returned by FromProcess on platforms without
// Unix user and group ids. Set run_as in the configuration there.
var ErrNoProcessIdentity = errors.New("process has no unix identity")

// RootUID is the privileged user id. A caller running as RootUID may
// request sessions and shares on behalf of any owner and group.
const RootUID uint32 = 0

// Cred is the effective local identity of a caller.
type Cred struct {
	UID uint32 `json:"uid" yaml:"uid" mapstructure:"uid"`
	GID uint32 `json:"gid" yaml:"gid" mapstructure:"gid"`

	// Groups are the supplementary groups. GID is always a member even
	// when it is not repeated here.
	Groups []uint32 `json:"groups,omitempty" yaml:"groups,omitempty" mapstructure:"groups"`
}

// Root returns the privileged credential.
func Root() Cred {
	return Cred{UID: RootUID, GID: 0}
}

// Privileged reports whether c may impersonate any uid/gid and bypasses
// permission checks.
func (c Cred) Privileged() bool {
	return c.UID == RootUID
}

// InGroup reports whether c is a member of gid, either as its primary
// group or a supplementary one.
func (c Cred) InGroup(gid uint32) bool {
	return c.GID == gid || slices.Contains(c.Groups, gid)
}

func (c Cred) String() string {
	return fmt.Sprintf("uid=%d gid=%d", c.UID, c.GID)
}
