package retry

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Class is the retry classification of an error.
type Class int

const (
	// ClassTerminal errors are never retried: permission, validation,
	// not-found, unauthenticated, cancellation, and anything unrecognized.
	ClassTerminal Class = iota
	// ClassRetryable errors are transient transport conditions worth
	// another attempt.
	ClassRetryable
)

// Classify maps an error to its retry class. Remote document stores speak
// gRPC status codes; plain net errors cover direct transport failures.
// Context cancellation is terminal so a cancelled caller is not held hostage
// by the backoff loop.
func Classify(err error) Class {
	if err == nil {
		return ClassTerminal
	}
	if errors.Is(err, context.Canceled) {
		return ClassTerminal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return ClassRetryable
		default:
			// PermissionDenied, NotFound, InvalidArgument, Unauthenticated,
			// FailedPrecondition, AlreadyExists, Unknown, ...
			return ClassTerminal
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassRetryable
	}
	return ClassTerminal
}

// IsRetryable reports whether err classifies as retryable.
func IsRetryable(err error) bool {
	return Classify(err) == ClassRetryable
}
