// Package conn implements the reference-counted, lockable node every
// connection object (manager, session, share) is built from.
//
// Reference counting and locking are independent:
//
//   - The use count is guarded by a small interlock and may be changed
//     without holding the object lock.
//   - The object lock guards the embedding type's mutable fields and
//     the child list.
//
// Lock order is child before parent. Code that holds a parent and needs
// a child takes a reference with TryRef under the parent lock, unlocks
// the parent and only then locks the child. Teardown runs child to
// parent: it drains the child, then takes the parent lock just long
// enough to unlink.
package conn

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/marmos91/smbconn/internal/logger"
	connerrors "github.com/marmos91/smbconn/pkg/conn/errors"
)

// Level identifies the concrete kind of an object.
type Level int

const (
	LevelManager Level = iota + 1
	LevelSession
	LevelShare
)

func (l Level) String() string {
	switch l {
	case LevelManager:
		return "manager"
	case LevelSession:
		return "session"
	case LevelShare:
		return "share"
	default:
		return "unknown"
	}
}

// Flags holds object state bits. FlagGone is owned by this package;
// embedding types define their own bits starting at FlagUser.
type Flags uint32

const (
	// FlagGone is set exactly once, when the object is scheduled for
	// teardown. It is never cleared.
	FlagGone Flags = 1 << 0

	// FlagUser is the first bit available to embedding types.
	FlagUser Flags = 1 << 8
)

// Finalizer is implemented by the embedding type.
//
// OnGone runs once, with the object drained and exclusively locked,
// before the object is unlinked from its parent. It is where the network
// side of the object is shut down.
//
// OnFree runs once, when the last reference is gone, and releases
// everything the object owns.
type Finalizer interface {
	OnGone()
	OnFree()
}

// Object is the shared base. The zero value is not usable; call Init.
type Object struct {
	level Level
	id    uint64
	label string
	impl  Finalizer

	interlock sync.Mutex
	usecount  int
	flags     Flags

	lock rwLock

	// parent, linked and children are guarded by the parent's lock
	// (for parent and linked) and this object's lock (for children).
	parent   *Object
	linked   bool
	children []*Object

	retireOnce sync.Once
	freeOnce   sync.Once
}

// Init prepares o with a use count of 1, the reference owned by the
// creator.
func (o *Object) Init(level Level, id uint64, label string, impl Finalizer) {
	o.level = level
	o.id = id
	o.label = label
	o.impl = impl
	o.usecount = 1
	o.lock.sem = newRWLock().sem
}

// Level returns the object's kind.
func (o *Object) Level() Level { return o.level }

// ID returns the object's identifier.
func (o *Object) ID() uint64 { return o.id }

// Label returns a short description for logs and errors.
func (o *Object) Label() string { return o.label }

// Impl returns the embedding type.
func (o *Object) Impl() Finalizer { return o.impl }

func (o *Object) String() string {
	return fmt.Sprintf("%s %d (%s)", o.level, o.id, o.label)
}

// ============================================================================
// Reference counting
// ============================================================================

// Ref takes an additional reference. The caller must already hold a
// reference, or hold the parent's lock while the object is linked.
func (o *Object) Ref() {
	o.interlock.Lock()
	o.usecount++
	o.interlock.Unlock()
}

// TryRef takes a reference unless the object is gone. It never blocks
// on the object lock, which makes it safe to call while holding the
// parent's lock.
func (o *Object) TryRef() bool {
	o.interlock.Lock()
	defer o.interlock.Unlock()
	if o.flags&FlagGone != 0 || o.usecount == 0 {
		return false
	}
	o.usecount++
	return true
}

// Rele drops a reference. Dropping the last one runs the teardown
// sequence on the calling goroutine, so the caller must not hold the
// object's lock. Releasing an object whose count is already zero is
// rejected with ErrGone and has no effect.
func (o *Object) Rele() error {
	o.interlock.Lock()
	if o.usecount <= 0 {
		o.interlock.Unlock()
		logger.Warn("Release of unreferenced object ignored",
			logger.KeyLevel, o.level.String(), logger.KeyObjectID, o.id)
		return connerrors.NewGoneError(o.String())
	}
	o.usecount--
	if o.usecount > 0 {
		o.interlock.Unlock()
		return nil
	}
	o.flags |= FlagGone
	o.interlock.Unlock()

	o.teardown(true)
	return nil
}

// UseCount returns the current number of references.
func (o *Object) UseCount() int {
	o.interlock.Lock()
	defer o.interlock.Unlock()
	return o.usecount
}

// IsGone reports whether FlagGone is set.
func (o *Object) IsGone() bool {
	return o.Flags()&FlagGone != 0
}

// Flags returns a copy of the flag word.
func (o *Object) Flags() Flags {
	o.interlock.Lock()
	defer o.interlock.Unlock()
	return o.flags
}

// SetFlags sets user flag bits. FlagGone cannot be set this way.
func (o *Object) SetFlags(f Flags) {
	o.interlock.Lock()
	o.flags |= f &^ FlagGone
	o.interlock.Unlock()
}

// ClearFlags clears user flag bits. FlagGone cannot be cleared.
func (o *Object) ClearFlags(f Flags) {
	o.interlock.Lock()
	o.flags &^= f &^ FlagGone
	o.interlock.Unlock()
}

// ============================================================================
// Locking
// ============================================================================

// Lock acquires the object lock. It fails with ErrGone when the object
// is gone (before or after the wait) unless LockIgnoreGone is set, with
// ErrInterrupted when ctx is cancelled during the wait, and with
// ErrRecursiveLock when ctx's owner already holds the lock exclusively.
func (o *Object) Lock(ctx context.Context, mode LockMode) error {
	checkGone := mode&LockIgnoreGone == 0
	if checkGone && o.IsGone() {
		return connerrors.NewGoneError(o.String())
	}

	owner := ownerFrom(ctx)
	if o.lock.heldBy(owner) {
		logger.Error("Recursive lock attempt",
			logger.KeyLevel, o.level.String(), logger.KeyObjectID, o.id)
		return connerrors.NewRecursiveLockError(o.String())
	}

	exclusive := mode.exclusive()
	if err := o.lock.acquire(ctx, exclusive); err != nil {
		return connerrors.NewInterruptedError(o.String(), err)
	}
	if exclusive {
		o.lock.setOwner(owner)
	}

	if checkGone && o.IsGone() {
		o.Unlock(mode)
		return connerrors.NewGoneError(o.String())
	}
	return nil
}

// Unlock releases a lock taken with the same mode.
func (o *Object) Unlock(mode LockMode) {
	exclusive := mode.exclusive()
	if exclusive {
		o.lock.setOwner(0)
	}
	o.lock.release(exclusive)
}

// Get takes a reference and the lock. If locking fails the reference is
// dropped again, so the caller never ends up with a reference on an
// object it could not lock.
func (o *Object) Get(ctx context.Context, mode LockMode) error {
	o.Ref()
	if err := o.Lock(ctx, mode); err != nil {
		_ = o.Rele()
		return err
	}
	return nil
}

// Put undoes Get: it unlocks and then releases the reference.
func (o *Object) Put(mode LockMode) error {
	o.Unlock(mode)
	return o.Rele()
}

// ============================================================================
// Teardown
// ============================================================================

// Forget marks the object gone right away regardless of outstanding
// references. Children are forgotten first, then the object is drained,
// OnGone runs and the object is unlinked from its parent. References
// still held by callers remain valid for Rele; OnFree runs when the last
// of them is dropped. Later Lock calls fail with ErrGone.
//
// The caller must not hold the object's lock or its parent's.
func (o *Object) Forget() error {
	o.interlock.Lock()
	if o.flags&FlagGone != 0 {
		o.interlock.Unlock()
		return connerrors.NewGoneError(o.String())
	}
	o.flags |= FlagGone
	o.interlock.Unlock()

	// No child can be added from here on (AddChild refuses a gone
	// parent), so one pass is enough. Children detach by taking o's lock,
	// which is why this runs before the drain.
	kids, _ := o.RefChildren(context.Background())
	for _, c := range kids {
		_ = c.Forget()
		_ = c.Rele()
	}

	o.teardown(false)
	return nil
}

// teardown drains the lock, runs OnGone and unlinks the object. When
// final is set (the count reached zero) OnFree runs as well. A Forget
// racing with the final Rele is safe: sync.Once makes the second caller
// wait for the first one's drain before freeing.
func (o *Object) teardown(final bool) {
	o.retireOnce.Do(func() {
		// Drain: waits for every holder. Never fails on a background
		// context.
		_ = o.lock.acquire(context.Background(), true)
		o.impl.OnGone()
		o.detach()
		if final {
			o.freeOnce.Do(o.impl.OnFree)
		}
		o.lock.release(true)
	})
	if final {
		o.freeOnce.Do(o.impl.OnFree)
	}
}

// detach unlinks o from its parent and drops the reference o held on
// the parent. Only the parent lock is taken here; o's drain lock is
// already held, which is the child-before-parent order.
func (o *Object) detach() {
	p := o.parent
	if p == nil {
		return
	}

	// The parent cannot be gone while o is linked: o holds a reference
	// on it. Bypass the check anyway since a forgotten parent still has
	// to accept the unlink.
	_ = p.lock.acquire(context.Background(), true)
	linked := o.linked
	if linked {
		p.children = lo.Without(p.children, o)
		o.linked = false
	}
	p.lock.release(true)

	if linked {
		_ = p.Rele()
	}
}

// ============================================================================
// Children
// ============================================================================

// AddChild links child under o and makes child hold a reference on o.
// The caller must hold o's lock exclusively. Linking a gone child, or
// linking under a gone parent, is refused.
func (o *Object) AddChild(child *Object) error {
	if o.IsGone() {
		return connerrors.NewGoneError(o.String())
	}
	if child.IsGone() {
		return connerrors.NewGoneError(child.String())
	}
	if child.parent != nil && child.parent != o {
		return connerrors.NewInvalidArgumentError("object already has a parent")
	}
	if child.linked {
		return nil
	}
	o.Ref()
	child.parent = o
	child.linked = true
	o.children = append(o.children, child)
	return nil
}

// Linked reports whether o is currently in its parent's child list. The
// caller must hold the parent's lock for the answer to be stable.
func (o *Object) Linked() bool {
	return o.linked
}

// Parent returns the parent, or nil if o was never linked.
func (o *Object) Parent() *Object {
	return o.parent
}

// ChildrenLocked returns the child list. The caller must hold o's lock
// and must not keep the slice after unlocking.
func (o *Object) ChildrenLocked() []*Object {
	return o.children
}

// RefChildrenLocked takes a reference on every live child and returns
// them in insertion order. The caller must hold o's lock (shared is
// enough) and must Rele every returned child.
func (o *Object) RefChildrenLocked() []*Object {
	return lo.Filter(o.children, func(c *Object, _ int) bool {
		return c.TryRef()
	})
}

// RefChildren is RefChildrenLocked wrapped in a shared lock of o.
func (o *Object) RefChildren(ctx context.Context) ([]*Object, error) {
	if err := o.Lock(ctx, LockShared|LockIgnoreGone); err != nil {
		return nil, err
	}
	defer o.Unlock(LockShared)
	return o.RefChildrenLocked(), nil
}

// ReleAll drops one reference on each object.
func ReleAll(objs []*Object) {
	for _, c := range objs {
		_ = c.Rele()
	}
}
