package smbconn

import (
	"fmt"

	connerrors "github.com/marmos91/smbconn/pkg/conn/errors"
	"github.com/marmos91/smbconn/pkg/identity"
)

// validateOwner checks that cred may request owner and group: a
// privileged caller may name anyone, others only their own uid and a
// group they belong to.
func validateOwner(cred identity.Cred, owner, group uint32) error {
	if cred.Privileged() {
		return nil
	}
	if owner != AnyOwner && owner != cred.UID {
		return connerrors.NewPermissionDeniedError(
			fmt.Sprintf("uid %d may not request owner %d", cred.UID, owner))
	}
	if group != AnyGroup && !cred.InGroup(group) {
		return connerrors.NewPermissionDeniedError(
			fmt.Sprintf("uid %d is not a member of group %d", cred.UID, group))
	}
	return nil
}

// ownership is the owner/group/mode triple shared by sessions and shares.
type ownership struct {
	owner uint32
	group uint32
	mode  Mode // permission bits only
}

// accessCheck is the rwx check: the owner is tested against the owner
// bits, a member of the group against the group bits and everybody else
// against the other bits. rights is given in the owner position. A
// privileged caller always passes.
func (o ownership) accessCheck(cred identity.Cred, rights Mode) bool {
	if cred.Privileged() {
		return true
	}
	rights = rights.Rights()
	switch {
	case cred.UID == o.owner:
	case cred.InGroup(o.group):
		rights >>= 3
	default:
		rights >>= 6
	}
	return o.mode&rights == rights
}

// matches applies the request rules. A pinned owner or group must be
// equal. A request is exact when it pins both and sets ModeExact; it then
// also needs identical permission bits. ModeExact on a request that pins
// less is ignored, so such a request is loose. A restricted session
// (private or single-share) is only returned to exact requests.
// Everything else is decided by the access check.
func (o ownership) matches(owner, group uint32, mode Mode, restricted bool, cred identity.Cred) bool {
	if owner != AnyOwner && owner != o.owner {
		return false
	}
	if group != AnyGroup && group != o.group {
		return false
	}

	exact := owner != AnyOwner && group != AnyGroup && mode&ModeExact != 0
	if exact && mode.Perm() != o.mode {
		return false
	}
	if restricted && !exact {
		return false
	}
	return o.accessCheck(cred, mode)
}

// resolve fills wildcards with the creator's identity.
func resolveOwnership(cred identity.Cred, owner, group uint32, mode Mode) ownership {
	if owner == AnyOwner {
		owner = cred.UID
	}
	if group == AnyGroup {
		group = cred.GID
	}
	return ownership{owner: owner, group: group, mode: mode.Perm()}
}
