// Package smb2 implements transport.Transport over the network with
// github.com/hirochachacha/go-smb2, authenticating with NTLM.
//
// Dialing is retried with exponential backoff; authentication and
// tree-connect failures are not, since repeating them cannot succeed and
// may lock the account out.
package smb2

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	cerrors "github.com/cockroachdb/errors"
	gosmb2 "github.com/hirochachacha/go-smb2"

	"github.com/marmos91/smbconn/internal/logger"
	"github.com/marmos91/smbconn/pkg/identity"
	"github.com/marmos91/smbconn/pkg/transport"
)

// Config controls dialing and session setup.
type Config struct {
	// DialTimeout bounds a single TCP connect attempt.
	DialTimeout time.Duration

	// MaxRetries is the number of dial attempts after the first one.
	MaxRetries uint64

	// InitialInterval and MaxInterval shape the exponential backoff
	// between dial attempts.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// RequireSigning refuses servers that do not sign messages.
	RequireSigning bool
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		DialTimeout:     10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Transport dials SMB2/3 servers.
type Transport struct {
	cfg Config
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport. Zero fields of cfg fall back to DefaultConfig.
func New(cfg Config) *Transport {
	def := DefaultConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	return &Transport{cfg: cfg}
}

// session is the handle returned by OpenSession.
type session struct {
	conn   net.Conn
	sess   *gosmb2.Session
	server string
	local  string

	mu      sync.Mutex
	nextTID transport.TreeID
	trees   map[transport.TreeID]*gosmb2.Share
}

func (s *session) Server() string    { return s.server }
func (s *session) LocalAddr() string { return s.local }

func (t *Transport) backoffPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.cfg.InitialInterval
	b.MaxInterval = t.cfg.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, t.cfg.MaxRetries), ctx)
}

// OpenSession dials req.Server, retrying connect failures, then
// negotiates and authenticates once.
func (t *Transport) OpenSession(ctx context.Context, req transport.OpenRequest) (transport.SessionHandle, error) {
	var h *session
	attempt := 0

	op := func() error {
		attempt++
		conn, err := t.dial(ctx, req)
		if err != nil {
			return err
		}

		s, err := t.negotiate(ctx, conn, req.Account)
		if err != nil {
			_ = conn.Close()
			return backoff.Permanent(err)
		}

		h = &session{
			conn:    conn,
			sess:    s,
			server:  req.Server,
			local:   conn.LocalAddr().String(),
			nextTID: 1,
			trees:   make(map[transport.TreeID]*gosmb2.Share),
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		logger.Warn("SMB dial failed, retrying",
			logger.KeyServer, req.Server,
			logger.KeyAttempt, attempt,
			logger.Err(err),
			"retry_in", next)
	}

	if err := backoff.RetryNotify(op, t.backoffPolicy(ctx), notify); err != nil {
		return nil, cerrors.Wrapf(err, "open session to %s", req.Server)
	}

	logger.Debug("SMB session established",
		logger.KeyServer, h.server,
		logger.KeyLocalAddr, h.local,
		logger.Username(req.Account.User))
	return h, nil
}

func (t *Transport) dial(ctx context.Context, req transport.OpenRequest) (net.Conn, error) {
	d := net.Dialer{Timeout: t.cfg.DialTimeout}
	if req.LocalAddr != "" {
		laddr, err := resolveLocal(req.LocalAddr)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		d.LocalAddr = laddr
	}
	return d.DialContext(ctx, "tcp", req.Server)
}

// resolveLocal accepts a bare host or host:port.
func resolveLocal(addr string) (*net.TCPAddr, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "0")
	}
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, cerrors.Wrapf(err, "resolve local address %q", addr)
	}
	return laddr, nil
}

func (t *Transport) negotiate(ctx context.Context, conn net.Conn, acct identity.Account) (*gosmb2.Session, error) {
	initiator := &gosmb2.NTLMInitiator{
		User:   acct.User,
		Domain: acct.Domain,
	}
	if hash, ok := acct.Hash(); ok {
		initiator.Hash = hash[:]
	}

	d := &gosmb2.Dialer{Initiator: initiator}
	d.Negotiator.RequireMessageSigning = t.cfg.RequireSigning

	s, err := d.DialContext(ctx, conn)
	if err != nil {
		return nil, cerrors.Wrap(err, "session setup")
	}
	return s, nil
}

// CloseSession unmounts whatever is still bound, logs off and closes the
// connection.
func (t *Transport) CloseSession(ctx context.Context, sh transport.SessionHandle) error {
	h := sh.(*session)

	h.mu.Lock()
	trees := h.trees
	h.trees = make(map[transport.TreeID]*gosmb2.Share)
	h.mu.Unlock()

	for tid, share := range trees {
		if err := share.Umount(); err != nil {
			logger.Debug("Unmount during logoff failed",
				logger.KeyServer, h.server, logger.TreeID(uint32(tid)), logger.Err(err))
		}
	}

	err := h.sess.WithContext(ctx).Logoff()
	if cerr := h.conn.Close(); err == nil && cerr != nil && !cerrors.Is(cerr, net.ErrClosed) {
		err = cerr
	}
	if err != nil {
		return cerrors.Wrapf(err, "logoff from %s", h.server)
	}
	return nil
}

// TreeConnect mounts share. go-smb2 keeps the server tree id private, so
// tree ids handed out here are local to the handle.
func (t *Transport) TreeConnect(ctx context.Context, sh transport.SessionHandle, share string) (transport.TreeID, error) {
	h := sh.(*session)

	mounted, err := h.sess.WithContext(ctx).Mount(share)
	if err != nil {
		return transport.TreeIDUnknown, cerrors.Wrapf(err, "tree connect %s on %s", share, h.server)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	tid := h.nextTID
	h.nextTID++
	if h.nextTID == transport.TreeIDUnknown {
		h.nextTID = 1
	}
	h.trees[tid] = mounted
	return tid, nil
}

// TreeDisconnect unmounts the share bound to tid.
func (t *Transport) TreeDisconnect(ctx context.Context, sh transport.SessionHandle, tid transport.TreeID) error {
	h := sh.(*session)

	h.mu.Lock()
	mounted, ok := h.trees[tid]
	delete(h.trees, tid)
	h.mu.Unlock()

	if !ok {
		return cerrors.Newf("tree id %s not connected on %s", tid, h.server)
	}
	if err := mounted.WithContext(ctx).Umount(); err != nil {
		return cerrors.Wrapf(err, "tree disconnect %s on %s", tid, h.server)
	}
	return nil
}
