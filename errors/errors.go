package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrValidation      = fmt.Errorf("validation failed")
	ErrNetwork         = fmt.Errorf("network request failed")
	ErrStaleReference  = fmt.Errorf("event references an unknown conversation")
	ErrThreadSwitched  = fmt.Errorf("active conversation changed during load")
	ErrNoActiveThread  = fmt.Errorf("no active conversation")
	ErrMessageNotFound = fmt.Errorf("message not found in thread")
	ErrNotRetriable    = fmt.Errorf("message is not in a failed state")
	ErrSessionClosed   = fmt.Errorf("session is closed")
	ErrInvalidPayload  = fmt.Errorf("invalid event payload")
	ErrUnknownEvent    = fmt.Errorf("unknown push event")
	ErrInvalidDeepLink = fmt.Errorf("deep link has no chat target")
	ErrInvalidToken    = fmt.Errorf("auth token has no usable session claims")
	ErrPushClosed      = fmt.Errorf("push channel closed")
)

// NetworkError wraps any failed REST call. It matches ErrNetwork with errors.Is.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// Retriable reports whether repeating the same request may succeed.
// Transport failures have no status.
func (e *NetworkError) Retriable() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status >= http.StatusInternalServerError:
		return true
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func NewNetworkError(op string, status int, err error) error {
	return &NetworkError{Op: op, Status: status, Err: err}
}

func IsRetriable(err error) bool {
	var netErr *NetworkError
	if stderrors.As(err, &netErr) {
		return netErr.Retriable()
	}
	return false
}

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// AsNetwork keeps an existing NetworkError and wraps anything else.
func AsNetwork(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr *NetworkError
	if stderrors.As(err, &netErr) {
		return err
	}
	return NewNetworkError(op, 0, err)
}
