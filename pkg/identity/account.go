package identity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/crypto/md4" //nolint:staticcheck // MD4 is required for NTLM protocol compatibility
)

// Account is the remote account a session authenticates as. The
// connection core treats it as opaque authentication material; only the
// user and domain take part in matching.
type Account struct {
	// User is the remote user name. Empty means anonymous/guest.
	User string `json:"user" yaml:"user" mapstructure:"user"`

	// Domain is the NTLM domain, empty for the server's default.
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty" mapstructure:"domain"`

	// Password is the plaintext password. It is cleared once the NT hash
	// has been derived and never serialized back out.
	Password string `json:"-" yaml:"password,omitempty" mapstructure:"password"`

	// NTHash is the hex-encoded NT hash of the password: MD4(UTF16LE(pw)).
	//
	// SECURITY WARNING: the NT hash is enough to authenticate (pass the
	// hash). Config files carrying it must be readable by the service
	// account only.
	NTHash string `json:"-" yaml:"nt_hash,omitempty" mapstructure:"nt_hash"`
}

// Anonymous reports whether the account has no user name.
func (a *Account) Anonymous() bool {
	return a.User == ""
}

// Principal returns DOMAIN\user, or just user when no domain is set.
func (a *Account) Principal() string {
	if a.Domain == "" {
		return a.User
	}
	return a.Domain + `\` + a.User
}

// Hash returns the 16 byte NT hash. It prefers NTHash and falls back to
// hashing Password. The second value is false when neither is set or
// NTHash is malformed.
func (a *Account) Hash() ([16]byte, bool) {
	var ntHash [16]byte
	if a.NTHash != "" {
		decoded, err := hex.DecodeString(a.NTHash)
		if err != nil || len(decoded) != 16 {
			return ntHash, false
		}
		copy(ntHash[:], decoded)
		return ntHash, true
	}
	if a.Password != "" {
		return ComputeNTHash(a.Password), true
	}
	return ntHash, false
}

// Seal derives NTHash from Password and drops the plaintext.
func (a *Account) Seal() {
	if a.Password == "" {
		return
	}
	ntHash := ComputeNTHash(a.Password)
	a.NTHash = hex.EncodeToString(ntHash[:])
	a.Password = ""
}

// Validate checks the account fields for obvious mistakes.
func (a *Account) Validate() error {
	if strings.ContainsAny(a.User, `\/@`) {
		return fmt.Errorf("user %q must not contain a domain separator", a.User)
	}
	if a.NTHash != "" {
		if _, ok := a.Hash(); !ok {
			return fmt.Errorf("nt_hash must be 32 hex characters")
		}
	}
	return nil
}

// ComputeNTHash computes the NT hash from a password.
// The NT hash is: MD4(UTF16LE(password))
func ComputeNTHash(password string) [16]byte {
	utf16Password := utf16.Encode([]rune(password))
	passwordBytes := make([]byte, len(utf16Password)*2)
	for i, r := range utf16Password {
		binary.LittleEndian.PutUint16(passwordBytes[i*2:], r)
	}

	h := md4.New()
	h.Write(passwordBytes)
	var ntHash [16]byte
	copy(ntHash[:], h.Sum(nil))
	return ntHash
}
