package config

import (
	"fmt"

	"github.com/marmos91/smbconn/pkg/identity"
	"github.com/marmos91/smbconn/pkg/smbconn"
)

// MountConfig describes a session, and optionally a share in it, that
// 'smbconn serve' establishes at start and keeps referenced until
// shutdown.
//
// Example:
//
//	mounts:
//	  - name: projects
//	    server: fileserver.corp:445
//	    share: projects
//	    account:
//	      user: svc-backup
//	      domain: CORP
//	      nt_hash: 8846f7eaee8fb117ad06bdd830b7586c
//	    owner: 1000
//	    group: 100
//	    mode: "0750"
//	    share_mode: "0750"
type MountConfig struct {
	// Name identifies the mount in logs
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// Server is host or host:port (445 when omitted)
	Server string `mapstructure:"server" validate:"required" yaml:"server"`

	// LocalAddr optionally pins the local endpoint
	LocalAddr string `mapstructure:"local_addr" validate:"omitempty,hostname_port" yaml:"local_addr,omitempty"`

	// Share is the share to tree-connect. Empty means session only.
	Share string `mapstructure:"share" yaml:"share,omitempty"`

	// ShareType restricts the share type
	// Valid values: any, disk, printer, pipe, comm
	ShareType string `mapstructure:"share_type" validate:"omitempty,oneof=any disk printer pipe comm" yaml:"share_type,omitempty"`

	// Account is the remote identity
	Account identity.Account `mapstructure:"account" yaml:"account"`

	// Owner and Group of the session and share. Unset means any.
	Owner *uint32 `mapstructure:"owner" yaml:"owner,omitempty"`
	Group *uint32 `mapstructure:"group" yaml:"group,omitempty"`

	// Mode and ShareMode are the permission bits of the session and the
	// share, in octal. "|exact" asks for an identical object.
	// Default: 0700 and 0755
	Mode      OctalMode `mapstructure:"mode" yaml:"mode"`
	ShareMode OctalMode `mapstructure:"share_mode" yaml:"share_mode"`

	Private     bool `mapstructure:"private" yaml:"private,omitempty"`
	SingleShare bool `mapstructure:"single_share" yaml:"single_share,omitempty"`
}

// Specs converts the mount into lookup requests. Create is always set.
func (mc *MountConfig) Specs() (smbconn.SessionSpec, *smbconn.ShareSpec, error) {
	owner, group := smbconn.AnyOwner, smbconn.AnyGroup
	if mc.Owner != nil {
		owner = *mc.Owner
	}
	if mc.Group != nil {
		group = *mc.Group
	}

	spec := smbconn.SessionSpec{
		Server:      mc.Server,
		LocalAddr:   mc.LocalAddr,
		Account:     mc.Account,
		Owner:       owner,
		Group:       group,
		Mode:        smbconn.Mode(mc.Mode),
		Private:     mc.Private,
		SingleShare: mc.SingleShare,
		Create:      true,
	}
	if mc.Share == "" {
		return spec, nil, nil
	}

	stype, err := smbconn.ParseShareType(mc.ShareType)
	if err != nil {
		return spec, nil, fmt.Errorf("mount %s: %w", mc.Name, err)
	}
	return spec, &smbconn.ShareSpec{
		Name:  mc.Share,
		Type:  stype,
		Owner: owner,
		Group: group,
		Mode:  smbconn.Mode(mc.ShareMode),
	}, nil
}
