package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestRetryPolicy_Do(t *testing.T) {
	tests := []struct {
		name          string
		failures      int
		err           error
		wantErr       bool
		wantCalls     int
		wantRetryHook int
	}{
		{
			name:      "succeeds first time",
			failures:  0,
			wantCalls: 1,
		},
		{
			name:          "recovers after transient failures",
			failures:      2,
			err:           &mysql.MySQLError{Number: 2006},
			wantCalls:     3,
			wantRetryHook: 2,
		},
		{
			name:          "gives up after max attempts",
			failures:      5,
			err:           &mysql.MySQLError{Number: 2013},
			wantErr:       true,
			wantCalls:     3,
			wantRetryHook: 2,
		},
		{
			name:      "does not retry permanent errors",
			failures:  5,
			err:       &mysql.MySQLError{Number: 1045},
			wantErr:   true,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			hooks := 0
			policy := DefaultRetryPolicy().WithoutDelay()
			policy.OnRetry = func(int, time.Duration, error) { hooks++ }

			err := policy.Do(context.Background(), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("Expected %d calls, got %d", tt.wantCalls, calls)
			}
			if hooks != tt.wantRetryHook {
				t.Errorf("Expected %d retry hooks, got %d", tt.wantRetryHook, hooks)
			}
		})
	}
}

func TestRetryPolicy_ExhaustedErrorKeepsCause(t *testing.T) {
	cause := &mysql.MySQLError{Number: 2006, Message: "gone away"}
	err := DefaultRetryPolicy().WithoutDelay().Do(context.Background(), func(context.Context) error {
		return cause
	})

	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		t.Fatalf("Expected cause to be reachable, got %v", err)
	}

	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Context["attempts"] != 3 {
		t.Errorf("Expected attempts=3 in context, got %v", err)
	}
}

func TestRetryPolicy_CustomRetryable(t *testing.T) {
	calls := 0
	policy := DefaultRetryPolicy().WithoutDelay()
	policy.Retryable = func(error) bool { return false }

	_ = policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})

	if calls != 1 {
		t.Errorf("Expected a single call, got %d", calls)
	}
}

func TestRetryPolicy_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := DefaultRetryPolicy().Do(ctx, func(context.Context) error {
		t.Fatal("operation must not run on a canceled context")
		return nil
	})

	if GetErrorType(err) != ErrorTypeInterruption {
		t.Errorf("Expected interruption, got %v", err)
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Backoff: LinearBackoff}

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second}
	for i, attempt := range []int{1, 2, 3, 9} {
		if got := policy.delay(attempt); got != want[i] {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want[i], got)
		}
	}

	policy.Backoff = ExponentialBackoff
	if got := policy.delay(3); got != 4*time.Second {
		t.Errorf("Expected exponential delay 4s, got %v", got)
	}
}
