package smbconn

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/marmos91/smbconn/internal/logger"
	"github.com/marmos91/smbconn/internal/telemetry"
	"github.com/marmos91/smbconn/pkg/conn"
	connerrors "github.com/marmos91/smbconn/pkg/conn/errors"
	"github.com/marmos91/smbconn/pkg/identity"
	"github.com/marmos91/smbconn/pkg/metrics"
	"github.com/marmos91/smbconn/pkg/transport"
)

// State is the connection state of a session or share.
type State int32

const (
	StateConnecting State = iota
	StateEstablished
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is an authenticated session with one server, owned by the
// Manager. Callers get one from LookupOrCreate with a reference they must
// drop with Rele.
type Session struct {
	conn.Object

	mgr      *Manager
	server   string
	reqLocal string
	account  identity.Account
	own      ownership
	created  time.Time

	// handle is guarded by the object lock.
	handle transport.SessionHandle

	// Written under the exclusive object lock, readable without it.
	state     atomic.Int32
	localAddr atomic.Value // string

	genid atomic.Uint32
	mid   atomic.Uint64
}

func newSession(m *Manager, cred identity.Cred, spec *SessionSpec) *Session {
	s := &Session{
		mgr:      m,
		server:   spec.Server,
		reqLocal: spec.LocalAddr,
		account:  spec.Account,
		own:      resolveOwnership(cred, spec.Owner, spec.Group, spec.Mode),
		created:  time.Now(),
	}
	s.account.Seal()
	s.localAddr.Store(spec.LocalAddr)
	s.genid.Store(1)
	s.Init(conn.LevelSession, m.nextID.Add(1), s.account.User+"@"+s.server, s)

	var flags conn.Flags
	if spec.Private {
		flags |= FlagPrivate
	}
	if spec.SingleShare {
		flags |= FlagSingleShare
	}
	s.SetFlags(flags)

	metrics.ObjectCreated(m.metrics, conn.LevelSession.String())
	return s
}

// Server returns the server address, host:port.
func (s *Session) Server() string { return s.server }

// LocalAddr returns the local endpoint of the current connection.
func (s *Session) LocalAddr() string {
	addr, _ := s.localAddr.Load().(string)
	return addr
}

// User returns the remote account name.
func (s *Session) User() string { return s.account.User }

// Domain returns the remote account domain.
func (s *Session) Domain() string { return s.account.Domain }

// Owner returns the owning uid.
func (s *Session) Owner() uint32 { return s.own.owner }

// Group returns the owning gid.
func (s *Session) Group() uint32 { return s.own.group }

// Mode returns the permission bits.
func (s *Session) Mode() Mode { return s.own.mode }

// Created returns the creation time.
func (s *Session) Created() time.Time { return s.created }

// State returns the connection state.
func (s *Session) State() State { return State(s.state.Load()) }

// Generation returns the generation id. It starts at 1 and is bumped on
// every reconnect, which invalidates the tree ids of all shares.
func (s *Session) Generation() uint32 { return s.genid.Load() }

// NextMID returns the next message id of the session.
func (s *Session) NextMID() uint64 { return s.mid.Add(1) }

// IsPrivate reports whether the session was created private.
func (s *Session) IsPrivate() bool { return s.Flags()&FlagPrivate != 0 }

// IsSingleShare reports whether the session accepts a single share.
func (s *Session) IsSingleShare() bool { return s.Flags()&FlagSingleShare != 0 }

// AccessCheck reports whether cred holds rights (owner position) on s.
func (s *Session) AccessCheck(cred identity.Cred, rights Mode) bool {
	return s.own.accessCheck(cred, rights)
}

// candidate filters on immutable fields only, so it is safe under the
// manager lock without taking s's lock.
func (s *Session) candidate(spec *SessionSpec) bool {
	if s.server != spec.Server {
		return false
	}
	if !strings.EqualFold(s.account.User, spec.Account.User) ||
		!strings.EqualFold(s.account.Domain, spec.Account.Domain) {
		return false
	}
	return spec.LocalAddr == "" || spec.LocalAddr == s.reqLocal
}

// matchesLocked applies the full match. The caller holds s's lock.
func (s *Session) matchesLocked(spec *SessionSpec, cred identity.Cred) bool {
	if s.State() != StateEstablished {
		return false
	}
	restricted := s.Flags()&(FlagPrivate|FlagSingleShare) != 0
	return s.own.matches(spec.Owner, spec.Group, spec.Mode, restricted, cred)
}

// tryMatch locks s and tests it. Gone sessions simply do not match.
func (s *Session) tryMatch(ctx context.Context, spec *SessionSpec, cred identity.Cred) (bool, error) {
	if err := s.Lock(ctx, conn.LockExclusive); err != nil {
		if connerrors.IsGone(err) {
			return false, nil
		}
		return false, err
	}
	defer s.Unlock(conn.LockExclusive)
	return s.matchesLocked(spec, cred), nil
}

// connectLocked opens the remote session. The caller holds s exclusively.
func (s *Session) connectLocked(ctx context.Context) error {
	ctx, span := telemetry.StartConnSpan(ctx, telemetry.SpanSessionConnect, s.server,
		telemetry.SessionID(s.ID()),
		telemetry.Username(s.account.User),
		telemetry.Domain(s.account.Domain),
		telemetry.Generation(s.Generation()))

	start := time.Now()
	h, err := s.mgr.transport.OpenSession(ctx, transport.OpenRequest{
		Server:    s.server,
		LocalAddr: s.reqLocal,
		Account:   s.account,
	})
	metrics.ObserveTransport(s.mgr.metrics, "open_session", err, time.Since(start))
	if err != nil {
		s.state.Store(int32(StateFailed))
		err = transportError(ctx, "session setup", s.String(), err)
		telemetry.EndSpan(span, err)
		logger.WarnCtx(ctx, "Session setup failed",
			logger.SessionID(s.ID()), logger.Username(s.account.User), logger.Err(err))
		return err
	}

	s.handle = h
	s.localAddr.Store(h.LocalAddr())
	s.state.Store(int32(StateEstablished))
	span.SetAttributes(telemetry.LocalAddr(h.LocalAddr()))
	telemetry.EndSpan(span, nil)

	logger.InfoCtx(ctx, "Session established",
		logger.SessionID(s.ID()),
		logger.Username(s.account.User),
		logger.KeyLocalAddr, h.LocalAddr(),
		logger.Generation(s.Generation()),
		logger.DurationMs(logger.Duration(start)))
	return nil
}

// closeHandleLocked logs off the current handle. The caller holds s
// exclusively.
func (s *Session) closeHandleLocked(ctx context.Context) {
	h := s.handle
	if h == nil {
		return
	}
	s.handle = nil

	start := time.Now()
	err := s.mgr.transport.CloseSession(ctx, h)
	metrics.ObserveTransport(s.mgr.metrics, "close_session", err, time.Since(start))
	if err != nil {
		logger.DebugCtx(ctx, "Session logoff failed", logger.SessionID(s.ID()), logger.Err(err))
	}
}

// handleForShare returns the handle and generation a share should use.
func (s *Session) handleForShare(ctx context.Context) (transport.SessionHandle, uint32, error) {
	if err := s.Lock(ctx, conn.LockShared); err != nil {
		return nil, 0, publicError(s.String(), err)
	}
	defer s.Unlock(conn.LockShared)
	if s.handle == nil || s.State() != StateEstablished {
		return nil, 0, connerrors.NewTransportError("tree connect", s.String(), errNotConnected)
	}
	return s.handle, s.genid.Load(), nil
}

// Reconnect drops the current connection and opens a new one with the
// same identity. The generation is bumped, so every share's tree id
// becomes invalid and is re-established on next use.
func (s *Session) Reconnect(ctx context.Context) error {
	ctx = conn.NewOwner(ctx)
	if err := s.Lock(ctx, conn.LockExclusive); err != nil {
		return publicError(s.String(), err)
	}
	defer s.Unlock(conn.LockExclusive)

	ctx, span := telemetry.StartConnSpan(ctx, telemetry.SpanReconnect, s.server,
		telemetry.SessionID(s.ID()))

	s.closeHandleLocked(ctx)
	gen := s.genid.Add(1)
	for _, c := range s.ChildrenLocked() {
		c.Impl().(*Share).Invalidate()
	}
	s.state.Store(int32(StateConnecting))
	logger.InfoCtx(ctx, "Session reconnecting",
		logger.SessionID(s.ID()), logger.Generation(gen))

	err := s.connectLocked(ctx)
	telemetry.EndSpan(span, err)
	return err
}

// Shares returns referenced live shares in creation order. The caller
// must Rele each one.
func (s *Session) Shares(ctx context.Context) ([]*Share, error) {
	kids, err := s.RefChildren(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(kids, func(c *conn.Object, _ int) *Share {
		return c.Impl().(*Share)
	}), nil
}

// ShareByName returns a referenced live share named name.
func (s *Session) ShareByName(ctx context.Context, name string) (*Share, error) {
	if err := s.Lock(ctx, conn.LockShared); err != nil {
		return nil, publicError(s.String(), err)
	}
	c, ok := lo.Find(s.ChildrenLocked(), func(c *conn.Object) bool {
		return c.Impl().(*Share).name == name && c.TryRef()
	})
	s.Unlock(conn.LockShared)
	if !ok {
		return nil, connerrors.NewNotFoundError("share " + name + " on " + s.String())
	}
	return c.Impl().(*Share), nil
}

// Forget tears the session down now, with all of its shares. References
// held elsewhere stay valid for Rele only.
func (s *Session) Forget() error {
	if err := s.Object.Forget(); err != nil {
		return err
	}
	metrics.RecordForget(s.mgr.metrics, conn.LevelSession.String())
	logger.Info("Session forgotten", logger.SessionID(s.ID()), logger.Server(s.server))
	return nil
}

// OnGone logs off. It runs once, drained and exclusively locked.
func (s *Session) OnGone() {
	ctx, cancel := s.mgr.teardownContext()
	defer cancel()
	ctx, span := telemetry.StartConnSpan(ctx, telemetry.SpanTeardown, s.server,
		telemetry.Level(conn.LevelSession.String()),
		telemetry.SessionID(s.ID()))
	defer span.End()

	s.closeHandleLocked(ctx)
	s.state.Store(int32(StateClosed))
	logger.DebugCtx(ctx, "Session closed", logger.SessionID(s.ID()), logger.Server(s.server))
}

// OnFree wipes the credentials.
func (s *Session) OnFree() {
	s.account.Password = ""
	s.account.NTHash = ""
	metrics.ObjectDestroyed(s.mgr.metrics, conn.LevelSession.String())
}

func (s *Session) addShareLocked(sh *Share) (transport.SessionHandle, uint32, error) {
	if s.IsSingleShare() && lo.SomeBy(s.ChildrenLocked(), func(c *conn.Object) bool { return !c.IsGone() }) {
		return nil, 0, connerrors.NewPermissionDeniedError(s.String() + " is single-share and already has a share")
	}
	if s.handle == nil || s.State() != StateEstablished {
		return nil, 0, connerrors.NewTransportError("tree connect", s.String(), errNotConnected)
	}
	if err := s.AddChild(&sh.Object); err != nil {
		return nil, 0, publicError(s.String(), err)
	}
	return s.handle, s.genid.Load(), nil
}
