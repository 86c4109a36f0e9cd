package aws

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/fraclad/s3-insight/types"
)

var authErrorCodes = map[string]bool{
	"InvalidAccessKeyId":          true,
	"SignatureDoesNotMatch":       true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"InvalidToken":                true,
	"TokenRefreshRequired":        true,
	"InvalidClientTokenId":        true,
	"UnrecognizedClientException": true,
}

var retryableErrorCodes = map[string]bool{
	"SlowDown":             true,
	"Throttling":           true,
	"ThrottlingException":  true,
	"RequestLimitExceeded": true,
	"TooManyRequests":      true,
	"RequestTimeout":       true,
	"RequestTimeTooSkewed": true,
	"InternalError":        true,
	"ServiceUnavailable":   true,
}

// IsAuthError reports whether err means the credentials are invalid or
// expired.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var authErr *types.AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return authErrorCodes[apiErr.ErrorCode()]
	}
	return false
}

// IsRetryable reports whether err is a rate-limit or transient failure that
// is worth retrying. Cancellation is never retryable; a deadline is, since
// each page runs under its own timeout.
func IsRetryable(err error) bool {
	if err == nil || IsAuthError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && retryableErrorCodes[apiErr.ErrorCode()] {
		return true
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
