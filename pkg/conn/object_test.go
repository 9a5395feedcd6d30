package conn

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	connerrors "github.com/marmos91/smbconn/pkg/conn/errors"
)

// ============================================================================
// Test Helpers
// ============================================================================

// node is a minimal embedding type that records teardown calls.
type node struct {
	Object
	gone  atomic.Int32
	freed atomic.Int32

	mu    sync.Mutex
	order *[]string
	name  string
}

func (n *node) OnGone() {
	n.gone.Add(1)
	if n.order != nil {
		n.mu.Lock()
		*n.order = append(*n.order, "gone:"+n.name)
		n.mu.Unlock()
	}
}

func (n *node) OnFree() { n.freed.Add(1) }

func newNode(level Level, id uint64, name string) *node {
	n := &node{name: name}
	n.Init(level, id, name, n)
	return n
}

// link adds child under parent the way the manager does: parent locked
// exclusively for the insertion.
func link(t *testing.T, parent, child *node) {
	t.Helper()
	require.NoError(t, parent.Lock(context.Background(), LockExclusive))
	require.NoError(t, parent.AddChild(&child.Object))
	parent.Unlock(LockExclusive)
}

// ============================================================================
// Reference Counting
// ============================================================================

func TestObject_RefRele(t *testing.T) {
	t.Parallel()

	n := newNode(LevelSession, 1, "s1")
	assert.Equal(t, 1, n.UseCount())

	n.Ref()
	assert.Equal(t, 2, n.UseCount())

	require.NoError(t, n.Rele())
	assert.Equal(t, 1, n.UseCount())
	assert.False(t, n.IsGone())

	require.NoError(t, n.Rele())
	assert.Equal(t, 0, n.UseCount())
	assert.True(t, n.IsGone())
	assert.EqualValues(t, 1, n.gone.Load())
	assert.EqualValues(t, 1, n.freed.Load())
}

func TestObject_ReleOfUnreferencedObjectIsRejected(t *testing.T) {
	t.Parallel()

	n := newNode(LevelShare, 2, "sh")
	require.NoError(t, n.Rele())

	err := n.Rele()
	require.Error(t, err)
	assert.True(t, connerrors.IsGone(err))
	assert.Equal(t, 0, n.UseCount())
	assert.EqualValues(t, 1, n.gone.Load(), "teardown must run once")
	assert.EqualValues(t, 1, n.freed.Load(), "free must run once")
}

func TestObject_TryRefRefusesGone(t *testing.T) {
	t.Parallel()

	n := newNode(LevelSession, 3, "s")
	assert.True(t, n.TryRef())
	require.NoError(t, n.Rele())

	require.NoError(t, n.Forget())
	assert.False(t, n.TryRef())
	assert.Equal(t, 1, n.UseCount())
}

func TestObject_UserFlagsCannotTouchGone(t *testing.T) {
	t.Parallel()

	n := newNode(LevelSession, 4, "s")
	n.SetFlags(FlagUser | FlagGone)
	assert.Equal(t, FlagUser, n.Flags())

	require.NoError(t, n.Forget())
	n.ClearFlags(FlagGone | FlagUser)
	assert.Equal(t, FlagGone, n.Flags())
}

// ============================================================================
// Locking
// ============================================================================

func TestObject_SharedLocksCoexist(t *testing.T) {
	t.Parallel()

	n := newNode(LevelSession, 5, "s")
	ctx := context.Background()

	require.NoError(t, n.Lock(ctx, LockShared))
	require.NoError(t, n.Lock(ctx, LockShared))
	n.Unlock(LockShared)
	n.Unlock(LockShared)

	require.NoError(t, n.Lock(ctx, LockExclusive))
	n.Unlock(LockExclusive)
}

func TestObject_LockInterrupted(t *testing.T) {
	t.Parallel()

	n := newNode(LevelSession, 6, "s")
	require.NoError(t, n.Lock(context.Background(), LockExclusive))
	defer n.Unlock(LockExclusive)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := n.Get(ctx, LockExclusive)
	require.Error(t, err)
	assert.True(t, connerrors.IsInterrupted(err))
	assert.Equal(t, 1, n.UseCount(), "Get must roll its reference back")
}

func TestObject_RecursiveExclusiveLockFails(t *testing.T) {
	t.Parallel()

	n := newNode(LevelSession, 7, "s")
	ctx := NewOwner(context.Background())

	require.NoError(t, n.Lock(ctx, LockExclusive))
	defer n.Unlock(LockExclusive)

	err := n.Lock(ctx, LockExclusive)
	require.Error(t, err)
	assert.True(t, connerrors.IsCode(err, connerrors.ErrRecursiveLock))

	// A different owner simply waits; it is interrupted, not rejected.
	other, cancel := context.WithTimeout(NewOwner(context.Background()), 10*time.Millisecond)
	defer cancel()
	err = n.Lock(other, LockExclusive)
	assert.True(t, connerrors.IsInterrupted(err))
}

func TestNewOwner_AlwaysFresh(t *testing.T) {
	t.Parallel()

	ctx := NewOwner(context.Background())
	assert.NotZero(t, ownerFrom(ctx))
	assert.NotEqual(t, ownerFrom(ctx), ownerFrom(NewOwner(ctx)))
	assert.Zero(t, ownerFrom(context.Background()))
}

func TestObject_SharedContextAcrossGoroutinesWaits(t *testing.T) {
	t.Parallel()

	n := newNode(LevelSession, 8, "s")
	shared := context.Background()

	first := NewOwner(shared)
	require.NoError(t, n.Lock(first, LockExclusive))

	locked := make(chan error, 1)
	go func() {
		second := NewOwner(shared)
		err := n.Lock(second, LockExclusive)
		if err == nil {
			n.Unlock(LockExclusive)
		}
		locked <- err
	}()

	select {
	case err := <-locked:
		t.Fatalf("second owner did not wait: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	n.Unlock(LockExclusive)
	require.NoError(t, <-locked)
}

func TestObject_LockFailsOnGone(t *testing.T) {
	t.Parallel()

	n := newNode(LevelSession, 8, "s")
	n.Ref()
	require.NoError(t, n.Forget())

	err := n.Lock(context.Background(), LockExclusive)
	assert.True(t, connerrors.IsGone(err))

	require.NoError(t, n.Lock(context.Background(), LockShared|LockIgnoreGone))
	n.Unlock(LockShared)
}

func TestObject_WaiterSeesGoneAfterWait(t *testing.T) {
	t.Parallel()

	n := newNode(LevelSession, 9, "s")
	require.NoError(t, n.Lock(context.Background(), LockExclusive))

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.Lock(context.Background(), LockExclusive)
	}()
	time.Sleep(20 * time.Millisecond)

	forgot := make(chan struct{})
	go func() {
		_ = n.Forget()
		close(forgot)
	}()
	time.Sleep(20 * time.Millisecond)

	n.Unlock(LockExclusive)

	err := <-errCh
	assert.True(t, connerrors.IsGone(err), "a waiter must never come back with a lock on a gone object")
	<-forgot
	assert.EqualValues(t, 1, n.gone.Load())
}

// ============================================================================
// Teardown
// ============================================================================

func TestObject_DrainWaitsForLockHolders(t *testing.T) {
	t.Parallel()

	n := newNode(LevelShare, 10, "sh")
	require.NoError(t, n.Lock(context.Background(), LockShared))

	done := make(chan struct{})
	go func() {
		_ = n.Rele()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("teardown finished while a shared holder was active")
	case <-time.After(30 * time.Millisecond):
	}
	assert.True(t, n.IsGone())
	assert.EqualValues(t, 0, n.gone.Load())

	n.Unlock(LockShared)
	<-done
	assert.EqualValues(t, 1, n.gone.Load())
	assert.EqualValues(t, 1, n.freed.Load())
}

func TestObject_ChildHoldsParentReference(t *testing.T) {
	t.Parallel()

	parent := newNode(LevelManager, 1, "mgr")
	child := newNode(LevelSession, 2, "s")
	link(t, parent, child)

	assert.Equal(t, 2, parent.UseCount())
	assert.True(t, child.Linked())
	assert.Same(t, &parent.Object, child.Parent())

	require.NoError(t, child.Rele())

	assert.Equal(t, 1, parent.UseCount())
	require.NoError(t, parent.Lock(context.Background(), LockShared))
	assert.Empty(t, parent.ChildrenLocked())
	parent.Unlock(LockShared)
	assert.False(t, parent.IsGone())
}

func TestObject_TeardownCascadesChildToParent(t *testing.T) {
	t.Parallel()

	var order []string
	parent := newNode(LevelSession, 1, "session")
	child := newNode(LevelShare, 2, "share")
	parent.order, child.order = &order, &order
	link(t, parent, child)

	// Creator drops the session; the share still keeps it alive.
	require.NoError(t, parent.Rele())
	assert.False(t, parent.IsGone())

	require.NoError(t, child.Rele())
	assert.True(t, parent.IsGone())
	assert.Equal(t, []string{"gone:share", "gone:session"}, order)
	assert.EqualValues(t, 1, parent.freed.Load())
}

func TestObject_ForgetKeepsHandleUsableForRelease(t *testing.T) {
	t.Parallel()

	parent := newNode(LevelManager, 1, "mgr")
	child := newNode(LevelSession, 2, "s")
	link(t, parent, child)
	child.Ref() // a second caller

	require.NoError(t, child.Forget())

	assert.True(t, child.IsGone())
	assert.EqualValues(t, 1, child.gone.Load())
	assert.EqualValues(t, 0, child.freed.Load())
	assert.False(t, child.Linked())
	assert.Equal(t, 1, parent.UseCount(), "unlink must drop the child's parent reference")

	err := child.Forget()
	assert.True(t, connerrors.IsGone(err))

	require.NoError(t, child.Rele())
	assert.EqualValues(t, 0, child.freed.Load())
	require.NoError(t, child.Rele())
	assert.EqualValues(t, 1, child.freed.Load())
	assert.EqualValues(t, 1, child.gone.Load())
}

func TestObject_ForgetCascadesToChildren(t *testing.T) {
	t.Parallel()

	var order []string
	root := newNode(LevelManager, 1, "mgr")
	sess := newNode(LevelSession, 2, "session")
	a := newNode(LevelShare, 3, "a")
	b := newNode(LevelShare, 4, "b")
	sess.order, a.order, b.order = &order, &order, &order
	link(t, root, sess)
	link(t, sess, a)
	link(t, sess, b)

	// The share creators dropped their references; only the tree and
	// one share holder remain.
	require.NoError(t, a.Rele())
	assert.True(t, a.IsGone())
	order = order[:0]

	require.NoError(t, sess.Forget())

	assert.True(t, b.IsGone())
	assert.False(t, b.Linked())
	assert.Equal(t, []string{"gone:b", "gone:session"}, order)
	assert.Equal(t, 1, root.UseCount())

	err := sess.Lock(context.Background(), LockExclusive)
	assert.True(t, connerrors.IsGone(err))

	// The remaining holders can still release.
	require.NoError(t, b.Rele())
	assert.EqualValues(t, 1, b.freed.Load())
	require.NoError(t, sess.Rele())
	assert.EqualValues(t, 1, sess.freed.Load())
}

func TestObject_AddChildRefusesGoneParent(t *testing.T) {
	t.Parallel()

	parent := newNode(LevelSession, 1, "s")
	parent.Ref()
	require.NoError(t, parent.Lock(context.Background(), LockExclusive))
	go func() { _ = parent.Forget() }()
	require.Eventually(t, parent.IsGone, time.Second, time.Millisecond)

	child := newNode(LevelShare, 2, "sh")
	err := parent.AddChild(&child.Object)
	parent.Unlock(LockExclusive)

	assert.True(t, connerrors.IsGone(err))
	assert.False(t, child.Linked())
}

func TestObject_AddChildRefusesGoneChild(t *testing.T) {
	t.Parallel()

	parent := newNode(LevelManager, 1, "mgr")
	child := newNode(LevelSession, 2, "s")
	child.Ref()
	require.NoError(t, child.Forget())

	require.NoError(t, parent.Lock(context.Background(), LockExclusive))
	err := parent.AddChild(&child.Object)
	parent.Unlock(LockExclusive)

	assert.True(t, connerrors.IsGone(err))
	assert.Equal(t, 1, parent.UseCount())
}

func TestObject_RefChildrenSkipsGone(t *testing.T) {
	t.Parallel()

	parent := newNode(LevelSession, 1, "s")
	a := newNode(LevelShare, 2, "a")
	b := newNode(LevelShare, 3, "b")
	link(t, parent, a)
	link(t, parent, b)

	b.Ref()
	require.NoError(t, b.Forget())

	kids, err := parent.RefChildren(context.Background())
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Same(t, &a.Object, kids[0])
	assert.Equal(t, 2, a.UseCount())

	ReleAll(kids)
	assert.Equal(t, 1, a.UseCount())
}

func TestObject_ConcurrentRefRele(t *testing.T) {
	t.Parallel()

	n := newNode(LevelSession, 1, "s")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.Get(context.Background(), LockShared); err != nil {
				return
			}
			_ = n.Put(LockShared)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, n.UseCount())
	require.NoError(t, n.Rele())
	assert.EqualValues(t, 1, n.gone.Load())
}

func TestLevel_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "manager", LevelManager.String())
	assert.Equal(t, "session", LevelSession.String())
	assert.Equal(t, "share", LevelShare.String())
	assert.Equal(t, "unknown", Level(0).String())
}
