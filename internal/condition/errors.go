package condition

import (
	"errors"
	"fmt"
)

var (
	// ErrMetricNotFound is returned by a MetricLookup for an unknown metric id.
	ErrMetricNotFound = errors.New("metric not found")

	// ErrInvalidMetric is returned by a MetricLookup when a definition breaks
	// thresholdCount >= 1 or 1 <= timeFrameHours <= 24.
	ErrInvalidMetric = errors.New("invalid metric definition")
)

// DependencyError reports a failed MetricLookup or ThresholdOracle call. It is
// never folded into a false evaluation.
type DependencyError struct {
	MetricID  MetricRef
	Op        string
	Retryable bool
	Err       error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s metric %s: %v", e.Op, e.MetricID, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a dependency failure worth retrying.
func IsRetryable(err error) bool {
	var depErr *DependencyError
	if errors.As(err, &depErr) {
		return depErr.Retryable
	}
	return false
}

func newDependencyError(op string, ref MetricRef, err error) *DependencyError {
	return &DependencyError{
		MetricID:  ref,
		Op:        op,
		Retryable: !errors.Is(err, ErrMetricNotFound) && !errors.Is(err, ErrInvalidMetric),
		Err:       err,
	}
}
