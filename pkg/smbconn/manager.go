// Package smbconn is the SMB connection engine: a Manager owning
// authenticated sessions per server, each owning tree-connected shares.
//
// Callers ask for what they need with LookupOrCreate. An existing session
// or share is reused when its identity and access rules allow it, and a
// new one is created and connected otherwise. Everything returned carries
// a reference that the caller drops with Rele; the last Rele of an
// object disconnects it.
//
//	mgr := smbconn.NewManager(smb2.New(smb2.DefaultConfig()))
//	sess, share, err := mgr.LookupOrCreate(ctx, cred, smbconn.SessionSpec{
//		Server:  "fileserver",
//		Account: identity.Account{User: "alice", Password: "secret"},
//		Owner:   smbconn.AnyOwner,
//		Group:   smbconn.AnyGroup,
//		Mode:    0o700,
//		Create:  true,
//	}, &smbconn.ShareSpec{Name: "public", Owner: smbconn.AnyOwner, Group: smbconn.AnyGroup, Mode: 0o755})
//	if err != nil {
//		return err
//	}
//	defer sess.Rele()
//	defer share.Rele()
package smbconn

import (
	"context"
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

// DefaultTeardownTimeout bounds the logoff and tree disconnect sent
// while an object is torn down.
const DefaultTeardownTimeout = 5 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics sets the metrics sink. nil disables collection.
func WithMetrics(m metrics.ConnMetrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithTeardownTimeout bounds the network calls made during teardown.
func WithTeardownTimeout(d time.Duration) Option {
	return func(mgr *Manager) {
		if d > 0 {
			mgr.teardownTimeout = d
		}
	}
}

// Manager is the root of the object tree. It is never released; Shutdown
// tears its sessions down.
type Manager struct {
	conn.Object

	transport       transport.Transport
	metrics         metrics.ConnMetrics
	teardownTimeout time.Duration

	nextID atomic.Uint64
}

// NewManager creates a manager on top of tr.
func NewManager(tr transport.Transport, opts ...Option) *Manager {
	m := &Manager{
		transport:       tr,
		teardownTimeout: DefaultTeardownTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Init(conn.LevelManager, 0, "manager", m)
	return m
}

func (m *Manager) OnGone() {}
func (m *Manager) OnFree() {}

func (m *Manager) teardownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.teardownTimeout)
}

// LookupOrCreate returns a session matching spec, creating and
// connecting one if none matches and spec.Create is set. When shareSpec
// is non-nil a matching share within that session is returned the same
// way; otherwise the share result is nil.
//
// Ownership in the specs is checked before anything else happens: a
// caller that is not privileged may only request its own uid and a group
// it belongs to.
//
// Every returned object is referenced. On error nothing is, and a
// session created by this call is torn down again.
func (m *Manager) LookupOrCreate(ctx context.Context, cred identity.Cred, spec SessionSpec, shareSpec *ShareSpec) (sess *Session, share *Share, err error) {
	start := time.Now()
	result := metrics.ResultHit

	ctx = conn.NewOwner(ctx)
	ctx, span := telemetry.StartConnSpan(ctx, telemetry.SpanLookupOrCreate, spec.Server,
		telemetry.UID(cred.UID),
		telemetry.GID(cred.GID),
		telemetry.Username(spec.Account.User),
		telemetry.Mode(uint32(spec.Mode.Perm())),
		telemetry.Exact(spec.Exact()))
	lc := logger.NewLogContext("lookup", spec.Server).
		WithIdentity(cred.UID, cred.GID).
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	if shareSpec != nil {
		lc = lc.WithShare(shareSpec.Name)
	}
	ctx = logger.WithContext(ctx, lc)

	defer func() {
		if err != nil {
			result = resultOf(err)
			logger.DebugCtx(ctx, "Lookup failed", logger.Err(err))
		}
		metrics.ObserveLookup(m.metrics, result, time.Since(start))
		span.SetAttributes(telemetry.Result(result))
		telemetry.EndSpan(span, err)
	}()

	if err = spec.normalize(); err != nil {
		return nil, nil, err
	}
	if err = validateOwner(cred, spec.Owner, spec.Group); err != nil {
		return nil, nil, err
	}
	if shareSpec != nil {
		if err = shareSpec.validate(); err != nil {
			return nil, nil, err
		}
		if err = validateOwner(cred, shareSpec.Owner, shareSpec.Group); err != nil {
			return nil, nil, err
		}
	}

	if sess, err = m.findSession(ctx, cred, &spec); err != nil {
		return nil, nil, err
	}
	if sess == nil {
		if !spec.Create {
			return nil, nil, connerrors.NewNotFoundError("session for " + spec.Account.User + "@" + spec.Server)
		}
		if sess, err = m.createSession(ctx, cred, &spec); err != nil {
			return nil, nil, err
		}
		result = metrics.ResultCreated
	}
	span.SetAttributes(telemetry.SessionID(sess.ID()))

	if shareSpec == nil {
		return sess, nil, nil
	}

	share, created, err := sess.lookupOrCreateShare(ctx, cred, shareSpec, spec.Create)
	if err != nil {
		_ = sess.Rele()
		return nil, nil, err
	}
	if created {
		result = metrics.ResultCreated
	}
	return sess, share, nil
}

// findSession returns a referenced matching session, or nil. Candidates
// are referenced under the manager lock and tested one by one after it
// is dropped.
func (m *Manager) findSession(ctx context.Context, cred identity.Cred, spec *SessionSpec) (*Session, error) {
	if err := m.Lock(ctx, conn.LockShared); err != nil {
		return nil, err
	}
	cands := lo.FilterMap(m.ChildrenLocked(), func(c *conn.Object, _ int) (*Session, bool) {
		s := c.Impl().(*Session)
		return s, s.candidate(spec) && c.TryRef()
	})
	m.Unlock(conn.LockShared)

	for i, s := range cands {
		ok, err := s.tryMatch(ctx, spec, cred)
		if err != nil {
			releaseSessions(cands[i:])
			return nil, err
		}
		if ok {
			releaseSessions(cands[i+1:])
			return s, nil
		}
		_ = s.Rele()
	}
	return nil, nil
}

// createSession connects a new session and then links it. It is only
// visible to other lookups once connected.
func (m *Manager) createSession(ctx context.Context, cred identity.Cred, spec *SessionSpec) (*Session, error) {
	s := newSession(m, cred, spec)
	if err := s.Lock(ctx, conn.LockExclusive); err != nil {
		_ = s.Rele()
		return nil, err
	}
	err := s.connectLocked(ctx)
	s.Unlock(conn.LockExclusive)
	if err != nil {
		_ = s.Rele()
		return nil, err
	}

	if err := m.Lock(ctx, conn.LockExclusive); err != nil {
		_ = s.Rele()
		return nil, err
	}
	err = m.AddChild(&s.Object)
	m.Unlock(conn.LockExclusive)
	if err != nil {
		_ = s.Rele()
		return nil, err
	}

	logger.InfoCtx(ctx, "Session created",
		logger.SessionID(s.ID()),
		logger.Owner(s.own.owner),
		logger.Group(s.own.group),
		logger.Mode(uint32(s.own.mode)))
	return s, nil
}

func (s *Session) lookupOrCreateShare(ctx context.Context, cred identity.Cred, spec *ShareSpec, create bool) (*Share, bool, error) {
	sh, err := s.findShare(ctx, cred, spec)
	if err != nil || sh != nil {
		return sh, false, err
	}
	if !create {
		return nil, false, connerrors.NewNotFoundError("share " + spec.Name + " on " + s.String())
	}
	sh, err = s.createShare(ctx, cred, spec)
	return sh, err == nil, err
}

func (s *Session) findShare(ctx context.Context, cred identity.Cred, spec *ShareSpec) (*Share, error) {
	if err := s.Lock(ctx, conn.LockShared); err != nil {
		return nil, publicError(s.String(), err)
	}
	cands := lo.FilterMap(s.ChildrenLocked(), func(c *conn.Object, _ int) (*Share, bool) {
		sh := c.Impl().(*Share)
		return sh, sh.candidate(spec) && c.TryRef()
	})
	s.Unlock(conn.LockShared)

	for i, sh := range cands {
		ok, err := sh.tryMatch(ctx, spec, cred)
		if err != nil {
			releaseShares(cands[i:])
			return nil, err
		}
		if ok {
			releaseShares(cands[i+1:])
			return sh, nil
		}
		_ = sh.Rele()
	}
	return nil, nil
}

// createShare links a new share before connecting it, with the share
// locked, so a concurrent lookup for the same name waits for the outcome
// instead of creating a duplicate. A failed connect unlinks it again.
func (s *Session) createShare(ctx context.Context, cred identity.Cred, spec *ShareSpec) (*Share, error) {
	sh := newShare(s, cred, spec)
	if err := sh.Lock(ctx, conn.LockExclusive); err != nil {
		_ = sh.Rele()
		return nil, err
	}
	if err := s.Lock(ctx, conn.LockExclusive); err != nil {
		sh.Unlock(conn.LockExclusive)
		_ = sh.Rele()
		return nil, publicError(s.String(), err)
	}
	h, gen, err := s.addShareLocked(sh)
	s.Unlock(conn.LockExclusive)
	if err != nil {
		sh.Unlock(conn.LockExclusive)
		_ = sh.Rele()
		return nil, err
	}

	err = sh.treeConnectLocked(ctx, h, gen)
	sh.Unlock(conn.LockExclusive)
	if err != nil {
		_ = sh.Rele()
		return nil, err
	}
	return sh, nil
}

func releaseSessions(ss []*Session) {
	for _, s := range ss {
		_ = s.Rele()
	}
}

func releaseShares(ss []*Share) {
	for _, sh := range ss {
		_ = sh.Rele()
	}
}

// ============================================================================
// Administration
// ============================================================================

// Sessions returns referenced live sessions in creation order. The
// caller must Rele each one.
func (m *Manager) Sessions(ctx context.Context) ([]*Session, error) {
	kids, err := m.RefChildren(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(kids, func(c *conn.Object, _ int) *Session {
		return c.Impl().(*Session)
	}), nil
}

// Len returns the number of linked sessions.
func (m *Manager) Len() int {
	if err := m.Lock(context.Background(), conn.LockShared|conn.LockIgnoreGone); err != nil {
		return 0
	}
	defer m.Unlock(conn.LockShared)
	return len(m.ChildrenLocked())
}

// SessionByID returns the referenced live session with the given id.
func (m *Manager) SessionByID(ctx context.Context, id uint64) (*Session, error) {
	if err := m.Lock(ctx, conn.LockShared|conn.LockIgnoreGone); err != nil {
		return nil, err
	}
	c, ok := lo.Find(m.ChildrenLocked(), func(c *conn.Object) bool {
		return c.ID() == id && c.TryRef()
	})
	m.Unlock(conn.LockShared)
	if !ok {
		return nil, connerrors.NewNotFoundError("session " + formatID(id))
	}
	return c.Impl().(*Session), nil
}

// ForgetSession tears down session id and its shares right away. Callers
// still holding references keep them valid for Rele only.
func (m *Manager) ForgetSession(ctx context.Context, id uint64) error {
	ctx, span := telemetry.StartConnSpan(ctx, telemetry.SpanForget, "",
		telemetry.Level(conn.LevelSession.String()), telemetry.SessionID(id))
	s, err := m.SessionByID(ctx, id)
	if err != nil {
		telemetry.EndSpan(span, err)
		return err
	}
	defer func() { _ = s.Rele() }()

	err = publicError(s.String(), s.Forget())
	telemetry.EndSpan(span, err)
	return err
}

// ForgetShare tears down the share name of session id right away.
func (m *Manager) ForgetShare(ctx context.Context, id uint64, name string) error {
	ctx, span := telemetry.StartConnSpan(ctx, telemetry.SpanForget, "",
		telemetry.Level(conn.LevelShare.String()), telemetry.SessionID(id), telemetry.Share(name))
	s, err := m.SessionByID(ctx, id)
	if err != nil {
		telemetry.EndSpan(span, err)
		return err
	}
	defer func() { _ = s.Rele() }()

	sh, err := s.ShareByName(ctx, name)
	if err != nil {
		telemetry.EndSpan(span, err)
		return err
	}
	defer func() { _ = sh.Rele() }()

	err = publicError(sh.String(), sh.Forget())
	telemetry.EndSpan(span, err)
	return err
}

// Shutdown tears every session down. Without force it refuses with
// ErrBusy while sessions still exist, since each of them is referenced
// by some caller.
func (m *Manager) Shutdown(ctx context.Context, force bool) error {
	ctx, span := telemetry.StartConnSpan(ctx, telemetry.SpanShutdown, "")
	sessions, err := m.Sessions(ctx)
	if err != nil {
		telemetry.EndSpan(span, err)
		return err
	}
	defer releaseSessions(sessions)

	if len(sessions) > 0 && !force {
		refs := lo.SumBy(sessions, func(s *Session) int { return s.UseCount() - 1 })
		err = connerrors.NewBusyError("manager", refs)
		telemetry.EndSpan(span, err)
		return err
	}

	for _, s := range sessions {
		_ = s.Forget()
	}
	logger.InfoCtx(ctx, "Connection manager shut down", "sessions", len(sessions))
	telemetry.EndSpan(span, nil)
	return nil
}
