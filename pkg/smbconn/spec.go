package smbconn

import (
	"fmt"
	"net"
	"strings"

	"github.com/marmos91/smbconn/pkg/conn"
	connerrors "github.com/marmos91/smbconn/pkg/conn/errors"
	"github.com/marmos91/smbconn/pkg/identity"
)

// DefaultPort is the SMB port used when a server address has none.
const DefaultPort = "445"

// Wildcards for SessionSpec.Owner/Group and ShareSpec.Owner/Group.
const (
	AnyOwner uint32 = ^uint32(0)
	AnyGroup uint32 = ^uint32(0)
)

// Mode is a Unix-style permission triple plus the ModeExact request bit.
type Mode uint32

const (
	// ModeMask selects the rwxrwxrwx bits.
	ModeMask Mode = 0o777

	// ModeExact asks for an object with exactly this owner, group and
	// mode. It only takes effect when both owner and group are pinned.
	ModeExact Mode = 0o10000

	// Access rights, expressed in the owner position.
	ModeRead  Mode = 0o400
	ModeWrite Mode = 0o200
	ModeExec  Mode = 0o100
)

// Perm returns the permission bits without ModeExact.
func (m Mode) Perm() Mode { return m & ModeMask }

// Rights returns the access rights a request asks for: the owner
// position of the permission bits.
func (m Mode) Rights() Mode { return m & 0o700 }

func (m Mode) String() string {
	if m&ModeExact != 0 {
		return fmt.Sprintf("%04o|exact", uint32(m.Perm()))
	}
	return fmt.Sprintf("%04o", uint32(m.Perm()))
}

// ShareType is the resource type of a share.
type ShareType int

const (
	ShareTypeAny ShareType = iota
	ShareTypeDisk
	ShareTypePrinter
	ShareTypePipe
	ShareTypeComm
)

func (t ShareType) String() string {
	switch t {
	case ShareTypeAny:
		return "any"
	case ShareTypeDisk:
		return "disk"
	case ShareTypePrinter:
		return "printer"
	case ShareTypePipe:
		return "pipe"
	case ShareTypeComm:
		return "comm"
	default:
		return fmt.Sprintf("ShareType(%d)", int(t))
	}
}

// ParseShareType parses the names produced by ShareType.String. The
// empty string is ShareTypeAny.
func ParseShareType(s string) (ShareType, error) {
	switch strings.ToLower(s) {
	case "", "any":
		return ShareTypeAny, nil
	case "disk":
		return ShareTypeDisk, nil
	case "printer", "print":
		return ShareTypePrinter, nil
	case "pipe", "ipc":
		return ShareTypePipe, nil
	case "comm":
		return ShareTypeComm, nil
	default:
		return ShareTypeAny, fmt.Errorf("unknown share type %q", s)
	}
}

// Object flags, in the range conn reserves for embedding types.
const (
	// FlagPrivate restricts a session to exact requests.
	FlagPrivate = conn.FlagUser << iota

	// FlagSingleShare restricts a session to exact requests and to one
	// share.
	FlagSingleShare
)

// SessionSpec describes the session a caller wants.
type SessionSpec struct {
	// Server is the peer address, host or host:port (port 445 when
	// omitted).
	Server string

	// LocalAddr optionally pins the local endpoint. Sessions opened from
	// a different pinned endpoint do not match.
	LocalAddr string

	// Account is the remote identity. User and Domain take part in
	// matching; the password is only used to connect.
	Account identity.Account

	// Owner and Group of the session. AnyOwner/AnyGroup accept any
	// existing session the caller may access and default to the caller's
	// uid/gid when a session is created.
	Owner uint32
	Group uint32

	// Mode holds the permission bits of a created session, and the rights
	// (owner position) the caller needs on an existing one. ModeExact
	// demands an identical session.
	Mode Mode

	// Private and SingleShare flag a created session so that only exact
	// requests can share it.
	Private     bool
	SingleShare bool

	// Create allows LookupOrCreate to create the session and share when
	// none matches.
	Create bool
}

// Exact reports whether s pins owner, group and mode.
func (s *SessionSpec) Exact() bool {
	return s.Owner != AnyOwner && s.Group != AnyGroup && s.Mode&ModeExact != 0
}

func (s *SessionSpec) normalize() error {
	if strings.TrimSpace(s.Server) == "" {
		return connerrors.NewInvalidArgumentError("server address is required")
	}
	s.Server = NormalizeServer(s.Server)
	if s.Mode&^(ModeMask|ModeExact) != 0 {
		return connerrors.NewInvalidArgumentError(fmt.Sprintf("invalid mode %#o", uint32(s.Mode)))
	}
	if err := s.Account.Validate(); err != nil {
		return connerrors.NewInvalidArgumentError(err.Error())
	}
	return nil
}

// NormalizeServer adds DefaultPort to an address without a port.
func NormalizeServer(addr string) string {
	addr = strings.TrimSpace(addr)
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), DefaultPort)
}

// ShareSpec describes the share a caller wants within a session.
type ShareSpec struct {
	// Name is the share name, matched exactly.
	Name string

	// Type restricts the resource type; ShareTypeAny matches all.
	Type ShareType

	Owner uint32
	Group uint32
	Mode  Mode
}

// Exact reports whether s pins owner, group and mode.
func (s *ShareSpec) Exact() bool {
	return s.Owner != AnyOwner && s.Group != AnyGroup && s.Mode&ModeExact != 0
}

func (s *ShareSpec) validate() error {
	if s.Name == "" {
		return connerrors.NewInvalidArgumentError("share name is required")
	}
	if strings.ContainsAny(s.Name, `\/`) {
		return connerrors.NewInvalidArgumentError(fmt.Sprintf("share name %q must not contain a path", s.Name))
	}
	if s.Mode&^(ModeMask|ModeExact) != 0 {
		return connerrors.NewInvalidArgumentError(fmt.Sprintf("invalid mode %#o", uint32(s.Mode)))
	}
	if s.Type < ShareTypeAny || s.Type > ShareTypeComm {
		return connerrors.NewInvalidArgumentError(fmt.Sprintf("invalid share type %d", int(s.Type)))
	}
	return nil
}
