package smbconn

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/marmos91/smbconn/internal/logger"
	"github.com/marmos91/smbconn/internal/telemetry"
	"github.com/marmos91/smbconn/pkg/conn"
	connerrors "github.com/marmos91/smbconn/pkg/conn/errors"
	"github.com/marmos91/smbconn/pkg/identity"
	"github.com/marmos91/smbconn/pkg/metrics"
	"github.com/marmos91/smbconn/pkg/transport"
)

// Share is a tree connection within a Session. It holds a reference on
// its session for as long as it is linked.
type Share struct {
	conn.Object

	session *Session
	name    string
	stype   ShareType
	own     ownership
	created time.Time

	// Written under the exclusive object lock, readable without it.
	state atomic.Int32

	// tid and genid are the remote tree id and the session generation it
	// was obtained in. Invalidate may clear tid without the lock.
	tid   atomic.Uint32
	genid atomic.Uint32
}

func newShare(s *Session, cred identity.Cred, spec *ShareSpec) *Share {
	sh := &Share{
		session: s,
		name:    spec.Name,
		stype:   spec.Type,
		own:     resolveOwnership(cred, spec.Owner, spec.Group, spec.Mode),
		created: time.Now(),
	}
	if sh.stype == ShareTypeAny {
		sh.stype = ShareTypeDisk
	}
	sh.tid.Store(uint32(transport.TreeIDUnknown))
	sh.Init(conn.LevelShare, s.mgr.nextID.Add(1), spec.Name, sh)
	metrics.ObjectCreated(s.mgr.metrics, conn.LevelShare.String())
	return sh
}

// Session returns the owning session.
func (sh *Share) Session() *Session { return sh.session }

// Name returns the share name.
func (sh *Share) Name() string { return sh.name }

// Type returns the resource type.
func (sh *Share) Type() ShareType { return sh.stype }

// Owner returns the owning uid.
func (sh *Share) Owner() uint32 { return sh.own.owner }

// Group returns the owning gid.
func (sh *Share) Group() uint32 { return sh.own.group }

// Mode returns the permission bits.
func (sh *Share) Mode() Mode { return sh.own.mode }

// Created returns the creation time.
func (sh *Share) Created() time.Time { return sh.created }

// State returns the connection state.
func (sh *Share) State() State { return State(sh.state.Load()) }

// TreeID returns the remote tree id, TreeIDUnknown when not connected.
func (sh *Share) TreeID() transport.TreeID { return transport.TreeID(sh.tid.Load()) }

// Generation returns the session generation the tree id belongs to.
func (sh *Share) Generation() uint32 { return sh.genid.Load() }

// IsValid reports whether the tree id can be used: it is known and was
// obtained in the session's current generation.
func (sh *Share) IsValid() bool {
	return sh.TreeID() != transport.TreeIDUnknown &&
		sh.genid.Load() == sh.session.Generation()
}

// Invalidate marks the tree id unusable without tearing the share down.
// The next lookup or Revalidate connects it again.
func (sh *Share) Invalidate() {
	sh.tid.Store(uint32(transport.TreeIDUnknown))
}

// AccessCheck reports whether cred holds rights (owner position) on sh.
func (sh *Share) AccessCheck(cred identity.Cred, rights Mode) bool {
	return sh.own.accessCheck(cred, rights)
}

func (sh *Share) candidate(spec *ShareSpec) bool {
	return sh.name == spec.Name && (spec.Type == ShareTypeAny || spec.Type == sh.stype)
}

// reusable reports whether sh may be handed out. A share whose
// revalidation failed stays linked and is connected again by the next
// lookup; one that never connected is not.
func (sh *Share) reusable() bool {
	switch sh.State() {
	case StateEstablished:
		return true
	case StateFailed:
		return sh.genid.Load() != 0
	}
	return false
}

func (sh *Share) matchesLocked(spec *ShareSpec, cred identity.Cred) bool {
	if !sh.reusable() {
		return false
	}
	return sh.own.matches(spec.Owner, spec.Group, spec.Mode, false, cred)
}

// tryMatch locks sh, waiting out a tree connect in flight, and tests it.
// A matching share whose tree id went stale is connected again.
func (sh *Share) tryMatch(ctx context.Context, spec *ShareSpec, cred identity.Cred) (bool, error) {
	if err := sh.Lock(ctx, conn.LockExclusive); err != nil {
		if connerrors.IsGone(err) {
			return false, nil
		}
		return false, err
	}
	defer sh.Unlock(conn.LockExclusive)

	if !sh.matchesLocked(spec, cred) {
		return false, nil
	}
	if err := sh.revalidateLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Revalidate connects the share again if its tree id is stale.
func (sh *Share) Revalidate(ctx context.Context) error {
	ctx = conn.NewOwner(ctx)
	if err := sh.Lock(ctx, conn.LockExclusive); err != nil {
		return publicError(sh.String(), err)
	}
	defer sh.Unlock(conn.LockExclusive)
	return sh.revalidateLocked(ctx)
}

func (sh *Share) revalidateLocked(ctx context.Context) error {
	if sh.IsValid() {
		return nil
	}
	h, gen, err := sh.session.handleForShare(ctx)
	if err != nil {
		return err
	}
	logger.DebugCtx(ctx, "Share revalidating",
		logger.SessionID(sh.session.ID()), logger.Share(sh.name), logger.Generation(gen))
	return sh.treeConnectLocked(ctx, h, gen)
}

// treeConnectLocked binds the share on h. The caller holds sh
// exclusively and must not hold the session lock.
func (sh *Share) treeConnectLocked(ctx context.Context, h transport.SessionHandle, gen uint32) error {
	m := sh.session.mgr
	ctx, span := telemetry.StartConnSpan(ctx, telemetry.SpanTreeConnect, sh.session.server,
		telemetry.SessionID(sh.session.ID()),
		telemetry.Share(sh.name),
		telemetry.Generation(gen))

	start := time.Now()
	tid, err := m.transport.TreeConnect(ctx, h, sh.name)
	metrics.ObserveTransport(m.metrics, "tree_connect", err, time.Since(start))
	if err != nil {
		sh.state.Store(int32(StateFailed))
		err = transportError(ctx, "tree connect", sh.String(), err)
		telemetry.EndSpan(span, err)
		logger.WarnCtx(ctx, "Tree connect failed",
			logger.SessionID(sh.session.ID()), logger.Share(sh.name), logger.Err(err))
		return err
	}

	sh.genid.Store(gen)
	sh.tid.Store(uint32(tid))
	sh.state.Store(int32(StateEstablished))
	span.SetAttributes(telemetry.TreeID(uint32(tid)))
	telemetry.EndSpan(span, nil)

	logger.InfoCtx(ctx, "Tree connected",
		logger.SessionID(sh.session.ID()),
		logger.Share(sh.name),
		logger.TreeID(uint32(tid)),
		logger.Generation(gen))
	return nil
}

// Forget tears the share down now. References held elsewhere stay valid
// for Rele only.
func (sh *Share) Forget() error {
	if err := sh.Object.Forget(); err != nil {
		return err
	}
	metrics.RecordForget(sh.session.mgr.metrics, conn.LevelShare.String())
	logger.Info("Share forgotten", logger.SessionID(sh.session.ID()), logger.Share(sh.name))
	return nil
}

// OnGone disconnects the tree if it is still valid. The session lock is
// taken shared, which is the child-before-parent order.
func (sh *Share) OnGone() {
	defer sh.state.Store(int32(StateClosed))

	tid := sh.TreeID()
	if tid == transport.TreeIDUnknown || sh.State() != StateEstablished {
		return
	}

	s := sh.session
	ctx, cancel := s.mgr.teardownContext()
	defer cancel()

	if err := s.Lock(ctx, conn.LockShared|conn.LockIgnoreGone); err != nil {
		return
	}
	h, gen := s.handle, s.genid.Load()
	s.Unlock(conn.LockShared)

	// A handle from another generation never saw this tree id.
	if h == nil || gen != sh.genid.Load() {
		return
	}

	ctx, span := telemetry.StartConnSpan(ctx, telemetry.SpanTeardown, s.server,
		telemetry.Level(conn.LevelShare.String()),
		telemetry.Share(sh.name),
		telemetry.TreeID(uint32(tid)))
	start := time.Now()
	err := s.mgr.transport.TreeDisconnect(ctx, h, tid)
	metrics.ObserveTransport(s.mgr.metrics, "tree_disconnect", err, time.Since(start))
	telemetry.EndSpan(span, err)
	if err != nil {
		logger.DebugCtx(ctx, "Tree disconnect failed",
			logger.SessionID(s.ID()), logger.Share(sh.name), logger.Err(err))
	}
	sh.Invalidate()
}

// OnFree records the destruction.
func (sh *Share) OnFree() {
	metrics.ObjectDestroyed(sh.session.mgr.metrics, conn.LevelShare.String())
}
