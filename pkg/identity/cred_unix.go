//go:build unix

package identity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FromProcess returns the effective identity of the running process.
func FromProcess() (Cred, error) {
	groups, err := unix.Getgroups()
	if err != nil {
		return Cred{}, fmt.Errorf("read supplementary groups: %w", err)
	}

	c := Cred{UID: uint32(unix.Geteuid()), GID: uint32(unix.Getegid())}
	for _, g := range groups {
		if g >= 0 && uint32(g) != c.GID {
			c.Groups = append(c.Groups, uint32(g))
		}
	}
	return c, nil
}
