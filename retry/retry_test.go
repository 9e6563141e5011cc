package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRetryableFailuresThenSuccess(t *testing.T) {
	e := New(Config{MaxAttempts: 3, TotalTimeout: 5 * time.Second, InitialInterval: 20 * time.Millisecond})

	calls := 0
	start := time.Now()
	v, err := Do(context.Background(), e, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", status.Error(codes.Unavailable, "transient")
		}
		return "ok", nil
	})
	elapsed := time.Since(start)

	if err != nil || v != "ok" {
		t.Fatalf("Do: v=%q err=%v", v, err)
	}
	if calls != 3 {
		t.Fatalf("op invoked %d times, want 3", calls)
	}
	// Two backoff sleeps: 20ms + 40ms.
	if elapsed < 60*time.Millisecond {
		t.Fatalf("elapsed %v, want >= 60ms of backoff", elapsed)
	}
	if elapsed >= 5*time.Second {
		t.Fatalf("elapsed %v exceeded total timeout", elapsed)
	}
}

func TestTerminalFailsAfterOneAttempt(t *testing.T) {
	e := New(Config{MaxAttempts: 3, TotalTimeout: time.Second, InitialInterval: time.Millisecond})

	wantErr := status.Error(codes.PermissionDenied, "nope")
	calls := 0
	_, err := Do(context.Background(), e, func(context.Context) (int, error) {
		calls++
		return 0, wantErr
	})

	if calls != 1 {
		t.Fatalf("op invoked %d times, want 1", calls)
	}
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("err=%v, want the terminal error verbatim", err)
	}
}

func TestAttemptExhaustionSurfacesLastError(t *testing.T) {
	e := New(Config{MaxAttempts: 2, TotalTimeout: time.Second, InitialInterval: time.Millisecond})

	calls := 0
	_, err := Do(context.Background(), e, func(context.Context) (int, error) {
		calls++
		return 0, status.Error(codes.Unavailable, "still down")
	})

	if calls != 2 {
		t.Fatalf("op invoked %d times, want 2", calls)
	}
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("err=%v, want last retryable error", err)
	}
}

func TestTotalTimeoutBoundsWallClock(t *testing.T) {
	e := New(Config{MaxAttempts: 100, TotalTimeout: 50 * time.Millisecond, InitialInterval: 10 * time.Millisecond})

	start := time.Now()
	_, err := Do(context.Background(), e, func(context.Context) (int, error) {
		return 0, status.Error(codes.Unavailable, "always down")
	})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatalf("expected failure")
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("elapsed %v, total timeout did not bound the loop", elapsed)
	}
}

func TestDefaults(t *testing.T) {
	e := New(Config{})
	cfg := e.Config()
	if cfg.MaxAttempts != 3 || cfg.TotalTimeout != 15*time.Second || cfg.InitialInterval != time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"unavailable", status.Error(codes.Unavailable, "x"), ClassRetryable},
		{"deadline_code", status.Error(codes.DeadlineExceeded, "x"), ClassRetryable},
		{"resource_exhausted", status.Error(codes.ResourceExhausted, "x"), ClassRetryable},
		{"aborted", status.Error(codes.Aborted, "x"), ClassRetryable},
		{"permission_denied", status.Error(codes.PermissionDenied, "x"), ClassTerminal},
		{"not_found", status.Error(codes.NotFound, "x"), ClassTerminal},
		{"invalid_argument", status.Error(codes.InvalidArgument, "x"), ClassTerminal},
		{"unauthenticated", status.Error(codes.Unauthenticated, "x"), ClassTerminal},
		{"unknown_code", status.Error(codes.Unknown, "x"), ClassTerminal},
		{"dns", &net.DNSError{Err: "no such host", Name: "example.com"}, ClassRetryable},
		{"op_error", &net.OpError{Op: "dial", Err: errors.New("refused")}, ClassRetryable},
		{"ctx_canceled", context.Canceled, ClassTerminal},
		{"ctx_deadline", context.DeadlineExceeded, ClassRetryable},
		{"plain", errors.New("anything else"), ClassTerminal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("%s: Classify=%v, want %v", tc.name, got, tc.want)
		}
	}
}
