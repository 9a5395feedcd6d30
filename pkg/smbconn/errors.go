package smbconn

import (
	"context"

	"github.com/cockroachdb/errors"

	connerrors "github.com/marmos91/smbconn/pkg/conn/errors"
	"github.com/marmos91/smbconn/pkg/metrics"
)

var errNotConnected = errors.New("session is not connected")

// transportError classifies a transport failure. A failure caused by the
// caller's context ending is reported as an interruption.
func transportError(ctx context.Context, op, object string, err error) error {
	if ctx.Err() != nil {
		return connerrors.NewInterruptedError(object, err)
	}
	return connerrors.NewTransportError(op, object, err)
}

// publicError hides the internal gone state: a caller using a handle to
// a forgotten object sees NotFound.
func publicError(object string, err error) error {
	if connerrors.IsGone(err) {
		return connerrors.NewNotFoundError(object)
	}
	return err
}

// resultOf maps a lookup error to its metric label.
func resultOf(err error) string {
	switch {
	case connerrors.IsPermissionDenied(err):
		return metrics.ResultDenied
	case connerrors.IsNotFound(err):
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}
