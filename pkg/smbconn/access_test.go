package smbconn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/smbconn/pkg/identity"
)

func TestAccessCheck(t *testing.T) {
	own := ownership{owner: 1000, group: 100, mode: 0o754}

	tests := []struct {
		name   string
		cred   identity.Cred
		rights Mode
		want   bool
	}{
		{"owner rwx", uid1000, ModeRead | ModeWrite | ModeExec, true},
		{"group read exec", uid1002, ModeRead | ModeExec, true},
		{"group write", uid1002, ModeWrite, false},
		{"other read", uid1001, ModeRead, true},
		{"other exec", uid1001, ModeExec, false},
		{"no rights", uid1001, 0, true},
		{"root", identity.Root(), ModeRead | ModeWrite | ModeExec, true},
		{"permission bits ignored in rights", uid1001, ModeRead | 0o007, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, own.accessCheck(tt.cred, tt.rights))
		})
	}
}

func TestOwnershipMatches(t *testing.T) {
	own := ownership{owner: 1000, group: 100, mode: 0o750}

	tests := []struct {
		name       string
		owner      uint32
		group      uint32
		mode       Mode
		restricted bool
		cred       identity.Cred
		want       bool
	}{
		{"wildcards", AnyOwner, AnyGroup, 0, false, uid1000, true},
		{"pinned owner", 1000, AnyGroup, ModeRead, false, uid1000, true},
		{"other owner", 1001, AnyGroup, 0, false, identity.Root(), false},
		{"other group", AnyOwner, 200, 0, false, identity.Root(), false},
		{"exact", 1000, 100, 0o750 | ModeExact, false, uid1000, true},
		{"exact with other bits", 1000, 100, 0o700 | ModeExact, false, uid1000, false},
		{"exact bit with one pin is loose", 1000, AnyGroup, 0o700 | ModeExact, false, uid1000, true},
		{"exact bit with one pin still access checked", AnyOwner, 100, ModeWrite | ModeExact, false, uid1002, false},
		{"restricted loose", AnyOwner, AnyGroup, 0, true, uid1000, false},
		{"restricted exact", 1000, 100, 0o750 | ModeExact, true, uid1000, true},
		{"group member denied write", AnyOwner, AnyGroup, ModeWrite, false, uid1002, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, own.matches(tt.owner, tt.group, tt.mode, tt.restricted, tt.cred))
		})
	}
}

func TestValidateOwner(t *testing.T) {
	assert.NoError(t, validateOwner(uid1000, AnyOwner, AnyGroup))
	assert.NoError(t, validateOwner(uid1000, 1000, 100))
	assert.NoError(t, validateOwner(uid1002, 1002, 100), "supplementary group")
	assert.Error(t, validateOwner(uid1001, 1000, AnyGroup))
	assert.Error(t, validateOwner(uid1001, AnyOwner, 100))
	assert.NoError(t, validateOwner(identity.Root(), 1, 2))
}

func TestNormalizeServer(t *testing.T) {
	assert.Equal(t, "10.0.0.5:445", NormalizeServer("10.0.0.5"))
	assert.Equal(t, "10.0.0.5:1445", NormalizeServer(" 10.0.0.5:1445 "))
	assert.Equal(t, "[fe80::1]:445", NormalizeServer("fe80::1"))
	assert.Equal(t, "[fe80::1]:445", NormalizeServer("[fe80::1]"))
	assert.Equal(t, "files.example.com:445", NormalizeServer("files.example.com"))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "0644", Mode(0o644).String())
	assert.Equal(t, "0700|exact", (0o700 | ModeExact).String())
}

func TestParseShareType(t *testing.T) {
	for _, st := range []ShareType{ShareTypeAny, ShareTypeDisk, ShareTypePrinter, ShareTypePipe, ShareTypeComm} {
		got, err := ParseShareType(st.String())
		assert.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := ParseShareType("tape")
	assert.Error(t, err)
}
