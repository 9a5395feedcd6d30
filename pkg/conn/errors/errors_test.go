package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnError_Error(t *testing.T) {
	t.Parallel()

	t.Run("message with object", func(t *testing.T) {
		t.Parallel()
		err := NewNotFoundError("10.0.0.5:445")
		assert.Equal(t, "no matching connection: 10.0.0.5:445", err.Error())
	})

	t.Run("message without object", func(t *testing.T) {
		t.Parallel()
		err := &ConnError{Code: ErrBusy, Message: "busy"}
		assert.Equal(t, "busy", err.Error())
	})

	t.Run("cause is appended", func(t *testing.T) {
		t.Parallel()
		err := NewTransportError("tree connect", "public", stderrors.New("connection reset"))
		assert.Equal(t, "tree connect failed: public: connection reset", err.Error())
	})
}

func TestErrorCode_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrPermissionDenied, "PermissionDenied"},
		{ErrNotFound, "NotFound"},
		{ErrTransport, "TransportError"},
		{ErrBusy, "Busy"},
		{ErrInterrupted, "Interrupted"},
		{ErrGone, "Gone"},
		{ErrRecursiveLock, "RecursiveLock"},
		{ErrInvalidArgument, "InvalidArgument"},
		{ErrorCode(99), "Unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.code.String())
		})
	}
}

func TestErrorsIs_Sentinels(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("lookup: %w", NewPermissionDeniedError("uid 1001"))

	assert.True(t, stderrors.Is(err, PermissionDenied))
	assert.False(t, stderrors.Is(err, NotFound))
	assert.True(t, IsPermissionDenied(err))
	assert.Equal(t, ErrPermissionDenied, CodeOf(err))
}

func TestInterruptedError_UnwrapsContextError(t *testing.T) {
	t.Parallel()

	err := NewInterruptedError("session 3", context.Canceled)

	require.True(t, IsInterrupted(err))
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestTransportError_KeepsCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("handshake refused")
	err := NewTransportError("open session", "10.0.0.5:445", cause)

	assert.True(t, IsTransport(err))
	assert.True(t, stderrors.Is(err, cause))
}

func TestCodeOf_NonConnError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorCode(0), CodeOf(stderrors.New("plain")))
	assert.False(t, IsNotFound(nil))
}
