package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for connection-manager spans.
const (
	// Peer
	AttrServer    = "smb.server"
	AttrLocalAddr = "smb.local_addr"
	AttrUsername  = "smb.username"
	AttrDomain    = "smb.domain"

	// Objects
	AttrLevel      = "conn.level" // manager, session, share
	AttrObjectID   = "conn.object_id"
	AttrSessionID  = "smb.session_id"
	AttrShare      = "smb.share"
	AttrTreeID     = "smb.tree_id"
	AttrGeneration = "smb.generation"
	AttrUseCount   = "conn.usecount"

	// Request
	AttrOperation = "conn.operation"
	AttrResult    = "conn.result" // hit, created, not_found, denied, error
	AttrUID       = "user.uid"
	AttrGID       = "user.gid"
	AttrOwner     = "conn.owner"
	AttrGroup     = "conn.group"
	AttrMode      = "conn.mode"
	AttrExact     = "conn.exact"
)

// Span names.
const (
	SpanLookupOrCreate = "conn.lookup_or_create"
	SpanSessionConnect = "smb.session_connect"
	SpanTreeConnect    = "smb.tree_connect"
	SpanReconnect      = "smb.reconnect"
	SpanTeardown       = "conn.teardown"
	SpanForget         = "conn.forget"
	SpanShutdown       = "conn.shutdown"
)

func Server(addr string) attribute.KeyValue { return attribute.String(AttrServer, addr) }
func LocalAddr(addr string) attribute.KeyValue { return attribute.String(AttrLocalAddr, addr) }
func Username(name string) attribute.KeyValue { return attribute.String(AttrUsername, name) }
func Domain(name string) attribute.KeyValue { return attribute.String(AttrDomain, name) }

func Level(level string) attribute.KeyValue { return attribute.String(AttrLevel, level) }
func ObjectID(id uint64) attribute.KeyValue { return attribute.Int64(AttrObjectID, int64(id)) }
func SessionID(id uint64) attribute.KeyValue { return attribute.Int64(AttrSessionID, int64(id)) }
func Share(name string) attribute.KeyValue { return attribute.String(AttrShare, name) }
func TreeID(tid uint32) attribute.KeyValue { return attribute.Int64(AttrTreeID, int64(tid)) }
func Generation(g uint32) attribute.KeyValue { return attribute.Int64(AttrGeneration, int64(g)) }
func UseCount(n int) attribute.KeyValue { return attribute.Int(AttrUseCount, n) }
func Operation(op string) attribute.KeyValue { return attribute.String(AttrOperation, op) }
func Result(result string) attribute.KeyValue { return attribute.String(AttrResult, result) }
func UID(uid uint32) attribute.KeyValue { return attribute.Int64(AttrUID, int64(uid)) }
func GID(gid uint32) attribute.KeyValue { return attribute.Int64(AttrGID, int64(gid)) }
func Owner(uid uint32) attribute.KeyValue { return attribute.Int64(AttrOwner, int64(uid)) }
func Group(gid uint32) attribute.KeyValue { return attribute.Int64(AttrGroup, int64(gid)) }
func Exact(exact bool) attribute.KeyValue { return attribute.Bool(AttrExact, exact) }

// Mode renders permission bits in octal, the way they are configured.
func Mode(mode uint32) attribute.KeyValue {
	return attribute.String(AttrMode, fmt.Sprintf("%04o", mode))
}

// StartConnSpan starts a span for a connection-manager operation against
// server. Lookup and teardown are internal work; session setup and
// tree-connect are client calls to the server.
func StartConnSpan(ctx context.Context, name, server string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	kind := trace.SpanKindInternal
	if name == SpanSessionConnect || name == SpanTreeConnect || name == SpanReconnect {
		kind = trace.SpanKindClient
	}

	all := make([]attribute.KeyValue, 0, len(attrs)+1)
	if server != "" {
		all = append(all, Server(server))
	}
	all = append(all, attrs...)

	return StartSpan(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(all...),
	)
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
