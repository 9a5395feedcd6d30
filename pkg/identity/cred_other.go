//go:build !unix

package identity

// FromProcess fails with ErrNoProcessIdentity: this platform has no uid or
// gid to map a request to.
func FromProcess() (Cred, error) {
	return Cred{}, ErrNoProcessIdentity
}
