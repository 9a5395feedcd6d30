package identity

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCred_Privileged(t *testing.T) {
	assert.True(t, Root().Privileged())
	assert.False(t, Cred{UID: 1000, GID: 100}.Privileged())
}

func TestCred_InGroup(t *testing.T) {
	c := Cred{UID: 1000, GID: 100, Groups: []uint32{10, 20}}

	tests := []struct {
		gid  uint32
		want bool
	}{
		{100, true},
		{10, true},
		{20, true},
		{30, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.InGroup(tt.gid), "gid %d", tt.gid)
	}
}

func TestComputeNTHash(t *testing.T) {
	tests := []struct {
		password string
		want     string
	}{
		{"", "31d6cfe0d16ae931b73c59d7e0c089c0"},
		{"password", "8846f7eaee8fb117ad06bdd830b7586c"},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			got := ComputeNTHash(tt.password)
			assert.Equal(t, tt.want, hex.EncodeToString(got[:]))
		})
	}

	a, b := ComputeNTHash("Password"), ComputeNTHash("password")
	assert.NotEqual(t, a, b, "NT hash is case sensitive")
}

func TestAccount_Hash(t *testing.T) {
	t.Run("FromPassword", func(t *testing.T) {
		a := Account{User: "alice", Password: "password"}
		h, ok := a.Hash()
		require.True(t, ok)
		assert.Equal(t, "8846f7eaee8fb117ad06bdd830b7586c", hex.EncodeToString(h[:]))
	})

	t.Run("NTHashWins", func(t *testing.T) {
		a := Account{User: "alice", Password: "other", NTHash: "8846f7eaee8fb117ad06bdd830b7586c"}
		h, ok := a.Hash()
		require.True(t, ok)
		assert.Equal(t, ComputeNTHash("password"), h)
	})

	t.Run("Malformed", func(t *testing.T) {
		a := Account{User: "alice", NTHash: "zz"}
		_, ok := a.Hash()
		assert.False(t, ok)
		assert.Error(t, a.Validate())
	})

	t.Run("Empty", func(t *testing.T) {
		a := Account{}
		_, ok := a.Hash()
		assert.False(t, ok)
		assert.True(t, a.Anonymous())
	})
}

func TestAccount_Seal(t *testing.T) {
	a := Account{User: "alice", Domain: "CORP", Password: "password"}
	a.Seal()

	assert.Empty(t, a.Password)
	assert.Equal(t, "8846f7eaee8fb117ad06bdd830b7586c", a.NTHash)
	assert.Equal(t, `CORP\alice`, a.Principal())
	assert.NoError(t, a.Validate())
}

func TestAccount_ValidateRejectsQualifiedUser(t *testing.T) {
	a := Account{User: `CORP\alice`}
	assert.Error(t, a.Validate())
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$"))
	assert.True(t, VerifyPassword("correct-horse", hash))
	assert.False(t, VerifyPassword("wrong-horse", hash))
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("short"), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("a", 73)), ErrPasswordTooLong)
	assert.NoError(t, ValidatePassword("long-enough"))
}
