package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently so log lines about the same session or
// share can be correlated.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID
	KeySpanID  = "span_id"  // OpenTelemetry span ID

	// ========================================================================
	// Connection objects
	// ========================================================================
	KeyLevel      = "level_kind" // Object kind: manager, session, share
	KeyObjectID   = "object_id"  // Object identifier
	KeySessionID  = "session_id" // Session identifier
	KeyShare      = "share"      // Share name
	KeyShareType  = "share_type" // Share type tag
	KeyServer     = "server"     // Remote server address (host:port)
	KeyLocalAddr  = "local_addr" // Local endpoint address
	KeyTreeID     = "tree_id"    // Remote tree id
	KeyGeneration = "generation" // Session generation id
	KeyUseCount   = "usecount"   // Reference count
	KeyFlags      = "flags"      // Object flag word
	KeyState      = "state"      // Connection state

	// ========================================================================
	// Identity
	// ========================================================================
	KeyUID      = "uid"      // Caller user ID
	KeyGID      = "gid"      // Caller group ID
	KeyOwner    = "owner"    // Owning uid of an object
	KeyGroup    = "group"    // Owning gid of an object
	KeyMode     = "mode"     // Permission bits
	KeyUsername = "username" // Remote account name
	KeyDomain   = "domain"   // Remote account domain

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyOperation  = "operation"   // Operation name: lookup, connect, tree_connect...
	KeyResult     = "result"      // Outcome: hit, created, not_found...
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Error code name
	KeyAttempt    = "attempt"     // Retry attempt number

	// ========================================================================
	// Admin API
	// ========================================================================
	KeyMethod     = "method"      // HTTP method
	KeyPath       = "path"        // HTTP path
	KeyStatus     = "status"      // HTTP status code
	KeyRemoteAddr = "remote_addr" // HTTP client address
	KeyRequestID  = "request_id"  // HTTP request ID
)

// ============================================================================
// Field constructors
// ============================================================================

// TraceID returns a slog.Attr for an OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for an OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// SessionID returns a slog.Attr for a session identifier
func SessionID(id uint64) slog.Attr {
	return slog.Uint64(KeySessionID, id)
}

// Share returns a slog.Attr for a share name
func Share(name string) slog.Attr {
	return slog.String(KeyShare, name)
}

// Server returns a slog.Attr for the remote server address
func Server(addr string) slog.Attr {
	return slog.String(KeyServer, addr)
}

// TreeID returns a slog.Attr for a remote tree id
func TreeID(tid uint32) slog.Attr {
	return slog.Uint64(KeyTreeID, uint64(tid))
}

// Generation returns a slog.Attr for a session generation id
func Generation(gen uint32) slog.Attr {
	return slog.Uint64(KeyGeneration, uint64(gen))
}

// UseCount returns a slog.Attr for a reference count
func UseCount(n int) slog.Attr {
	return slog.Int(KeyUseCount, n)
}

// Mode returns a slog.Attr for permission bits, formatted as octal
func Mode(m uint32) slog.Attr {
	return slog.String(KeyMode, fmt.Sprintf("%04o", m))
}

// Owner returns a slog.Attr for the owning uid of a session or share
func Owner(uid uint32) slog.Attr {
	return slog.Uint64(KeyOwner, uint64(uid))
}

// Group returns a slog.Attr for the owning gid of a session or share
func Group(gid uint32) slog.Attr {
	return slog.Uint64(KeyGroup, uint64(gid))
}

// Username returns a slog.Attr for a remote account name
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// Operation returns a slog.Attr for an operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Err returns a slog.Attr for an error. A nil error yields an empty
// attribute which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for an operation duration
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
