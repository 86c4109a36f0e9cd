package aws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraclad/s3-insight/types"
)

func recordingBackoff(delays *[]time.Duration) Backoff {
	b := DefaultBackoff()
	b.Jitter = 0
	b.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return b
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: time.Second, Factor: 2, Max: 10 * time.Second}

	assert.Equal(t, time.Duration(0), b.Delay(0))
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 4*time.Second, b.Delay(3))
	assert.Equal(t, 8*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(5))
}

func TestBackoff_RetriesThenSucceeds(t *testing.T) {
	var delays []time.Duration
	b := recordingBackoff(&delays)

	calls := 0
	attempts, err := b.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce your request rate"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestBackoff_ExhaustsAttempts(t *testing.T) {
	var delays []time.Duration
	b := recordingBackoff(&delays)

	var retries []int
	b.OnRetry = func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) }

	attempts, err := b.Do(context.Background(), func() error {
		return &smithy.GenericAPIError{Code: "ServiceUnavailable"}
	})

	require.Error(t, err)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, []int{1, 2, 3, 4}, retries)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, delays)
}

func TestBackoff_NonRetryableStopsImmediately(t *testing.T) {
	var delays []time.Duration
	b := recordingBackoff(&delays)

	attempts, err := b.Do(context.Background(), func() error {
		return &smithy.GenericAPIError{Code: "AccessDenied"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, delays)
}

func TestBackoff_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := DefaultBackoff()
	b.Base = time.Hour

	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		attempts, err := b.Do(ctx, func() error {
			calls++
			return &smithy.GenericAPIError{Code: "SlowDown"}
		})
		assert.Equal(t, 1, attempts)
		assert.Error(t, err)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("backoff did not stop on cancellation")
	}
	assert.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	respErr := func(status int) error {
		return &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New("http failure"),
		}
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, true},
		{"throttling wrapped", fmt.Errorf("list: %w", &smithy.GenericAPIError{Code: "ThrottlingException"}), true},
		{"internal error", &smithy.GenericAPIError{Code: "InternalError"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"no such bucket", &smithy.GenericAPIError{Code: "NoSuchBucket"}, false},
		{"expired token", &smithy.GenericAPIError{Code: "ExpiredToken"}, false},
		{"http 503", respErr(http.StatusServiceUnavailable), true},
		{"http 429", respErr(http.StatusTooManyRequests), true},
		{"http 404", respErr(http.StatusNotFound), false},
		{"canceled", context.Canceled, false},
		{"page deadline", fmt.Errorf("page: %w", context.DeadlineExceeded), true},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(&smithy.GenericAPIError{Code: "InvalidAccessKeyId"}))
	assert.True(t, IsAuthError(&smithy.GenericAPIError{Code: "SignatureDoesNotMatch"}))
	assert.True(t, IsAuthError(&types.AuthError{Op: "ListBuckets", Err: errors.New("x")}))
	assert.False(t, IsAuthError(&smithy.GenericAPIError{Code: "SlowDown"}))
	assert.False(t, IsAuthError(nil))
}
