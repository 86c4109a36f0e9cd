package types

import "fmt"

// AuthError reports invalid or expired credentials. It is never retried.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError reports an unclassified provider error on a non-retryable call.
type APIError struct {
	Op     string
	Bucket string
	Err    error
}

func (e *APIError) Error() string {
	if e.Bucket == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed for bucket %s: %v", e.Op, e.Bucket, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// CollectionError reports that listing a bucket stopped before the end of
// its keyspace. Records gathered before the failure are still emitted.
type CollectionError struct {
	Bucket   string
	Pages    int64
	Attempts int
	Err      error
}

func (e *CollectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("collection of bucket %s stopped after %d pages (%d attempts): %v", e.Bucket, e.Pages, e.Attempts, e.Err)
	}
	return fmt.Sprintf("collection of bucket %s stopped after %d pages: %v", e.Bucket, e.Pages, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// MalformedRecordError identifies a corrupt line of a record stream by its
// 1-based position.
type MalformedRecordError struct {
	Position int64
	Bucket   string
	Key      string
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	if e.Bucket == "" && e.Key == "" {
		return fmt.Sprintf("malformed record at position %d: %s", e.Position, e.Reason)
	}
	return fmt.Sprintf("malformed record at position %d (bucket %q, key %q): %s", e.Position, e.Bucket, e.Key, e.Reason)
}
