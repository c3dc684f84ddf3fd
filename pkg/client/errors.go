package client

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout is returned when a request does not complete within its deadline.
var ErrTimeout = errors.New("workflow service request timed out")

// ServiceError is a non-success answer from the workflow service.
type ServiceError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s failed (%d): %s", e.Op, e.StatusCode, e.Detail)
	}

	return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the workflow service.
func IsNotFound(err error) bool {
	var svcErr *ServiceError

	return errors.As(err, &svcErr) && svcErr.StatusCode == 404
}

func wrapTransport(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}

	return fmt.Errorf("%s: %w", op, err)
}
