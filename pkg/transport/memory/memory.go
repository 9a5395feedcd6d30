// Package memory provides an in-process transport for testing. It
// accepts every session and share unless a failure is injected, can hold
// an operation in flight with a Gate, and counts every call.
package memory

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/marmos91/smbconn/pkg/transport"
)

// ErrClosed is returned for operations on a closed session handle.
var ErrClosed = errors.New("session handle closed")

// Op names a transport operation for failure injection and gates.
type Op string

const (
	OpOpen           Op = "open"
	OpClose          Op = "close"
	OpTreeConnect    Op = "tree_connect"
	OpTreeDisconnect Op = "tree_disconnect"
)

// Handle is the session handle returned by Transport.
type Handle struct {
	id     uint64
	server string
	local  string
	user   string
	closed atomic.Bool

	mu    sync.Mutex
	trees map[transport.TreeID]string
}

func (h *Handle) Server() string    { return h.server }
func (h *Handle) LocalAddr() string { return h.local }

// User returns the account name the session was opened with.
func (h *Handle) User() string { return h.user }

// Trees returns the share names currently connected on h.
func (h *Handle) Trees() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.trees))
	for _, n := range h.trees {
		names = append(names, n)
	}
	return names
}

// Counters is a snapshot of call counts.
type Counters struct {
	Opens           int64
	Closes          int64
	TreeConnects    int64
	TreeDisconnects int64
}

// Transport is an in-memory implementation of transport.Transport.
type Transport struct {
	mu       sync.Mutex
	failures map[string]error
	gates    map[string]*Gate
	live     map[uint64]*Handle

	nextSession atomic.Uint64
	nextTree    atomic.Uint32

	opens           atomic.Int64
	closes          atomic.Int64
	treeConnects    atomic.Int64
	treeDisconnects atomic.Int64
}

// New creates a new in-memory transport.
func New() *Transport {
	return &Transport{
		failures: make(map[string]error),
		gates:    make(map[string]*Gate),
		live:     make(map[uint64]*Handle),
	}
}

var _ transport.Transport = (*Transport)(nil)

func key(op Op, server, share string) string {
	return string(op) + "|" + server + "|" + share
}

// Fail makes every later call of op against server (and share, for tree
// operations; empty for session operations) return err. A nil err
// removes the injected failure.
func (t *Transport) Fail(op Op, server, share string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(op, server, share)
	if err == nil {
		delete(t.failures, k)
		return
	}
	t.failures[k] = err
}

// Hold installs a gate on op for server/share. Calls block inside the
// transport until the gate is released or their context ends.
func (t *Transport) Hold(op Op, server, share string) *Gate {
	g := newGate()
	t.mu.Lock()
	t.gates[key(op, server, share)] = g
	t.mu.Unlock()
	return g
}

// Counters returns the current call counts.
func (t *Transport) Counters() Counters {
	return Counters{
		Opens:           t.opens.Load(),
		Closes:          t.closes.Load(),
		TreeConnects:    t.treeConnects.Load(),
		TreeDisconnects: t.treeDisconnects.Load(),
	}
}

// LiveSessions returns the number of open, not yet closed sessions.
func (t *Transport) LiveSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// enter blocks on a gate, if any, and returns the injected failure.
func (t *Transport) enter(ctx context.Context, op Op, server, share string) error {
	k := key(op, server, share)
	t.mu.Lock()
	g := t.gates[k]
	t.mu.Unlock()

	if g != nil {
		if err := g.wait(ctx); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures[k]
}

// OpenSession creates a handle. The local address is LocalAddr when set,
// otherwise a loopback address with a port derived from the session id.
func (t *Transport) OpenSession(ctx context.Context, req transport.OpenRequest) (transport.SessionHandle, error) {
	t.opens.Add(1)
	if err := t.enter(ctx, OpOpen, req.Server, ""); err != nil {
		return nil, err
	}

	id := t.nextSession.Add(1)
	local := req.LocalAddr
	if local == "" {
		local = net.JoinHostPort("127.0.0.1", strconv.FormatUint(40000+id, 10))
	}
	h := &Handle{
		id:     id,
		server: req.Server,
		local:  local,
		user:   req.Account.User,
		trees:  make(map[transport.TreeID]string),
	}

	t.mu.Lock()
	t.live[id] = h
	t.mu.Unlock()
	return h, nil
}

// CloseSession closes h. Closing twice returns ErrClosed.
func (t *Transport) CloseSession(ctx context.Context, sh transport.SessionHandle) error {
	t.closes.Add(1)
	h := sh.(*Handle)
	if h.closed.Swap(true) {
		return ErrClosed
	}

	t.mu.Lock()
	delete(t.live, h.id)
	t.mu.Unlock()

	return t.enter(ctx, OpClose, h.server, "")
}

// TreeConnect binds share on h and returns a fresh tree id.
func (t *Transport) TreeConnect(ctx context.Context, sh transport.SessionHandle, share string) (transport.TreeID, error) {
	t.treeConnects.Add(1)
	h := sh.(*Handle)
	if err := t.enter(ctx, OpTreeConnect, h.server, share); err != nil {
		return transport.TreeIDUnknown, err
	}
	if h.closed.Load() {
		return transport.TreeIDUnknown, ErrClosed
	}

	tid := transport.TreeID(t.nextTree.Add(1))
	if tid == transport.TreeIDUnknown {
		tid = transport.TreeID(t.nextTree.Add(1))
	}

	h.mu.Lock()
	h.trees[tid] = share
	h.mu.Unlock()
	return tid, nil
}

// TreeDisconnect releases tid on h.
func (t *Transport) TreeDisconnect(ctx context.Context, sh transport.SessionHandle, tid transport.TreeID) error {
	t.treeDisconnects.Add(1)
	h := sh.(*Handle)

	h.mu.Lock()
	share, ok := h.trees[tid]
	delete(h.trees, tid)
	h.mu.Unlock()

	if err := t.enter(ctx, OpTreeDisconnect, h.server, share); err != nil {
		return err
	}
	if !ok {
		return errors.New("unknown tree id " + tid.String())
	}
	return nil
}

// ============================================================================
// Gates
// ============================================================================

// Gate holds calls inside the transport until released.
type Gate struct {
	entered     chan struct{}
	release     chan struct{}
	enterOnce   sync.Once
	releaseOnce sync.Once
}

func newGate() *Gate {
	return &Gate{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

// Entered is closed once the first call reaches the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets every held and future call through.
func (g *Gate) Release() {
	g.releaseOnce.Do(func() { close(g.release) })
}

func (g *Gate) wait(ctx context.Context) error {
	g.enterOnce.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
