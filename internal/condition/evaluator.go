package condition

import (
	"context"
	"fmt"
	"time"
)

const DefaultCallTimeout = 5 * time.Second

// Metric is a resolved metric definition.
type Metric struct {
	ID             string
	Name           string
	Label          string
	ThresholdCount int
	TimeFrameHours int
}

type MetricLookup interface {
	GetMetric(ctx context.Context, id MetricRef) (Metric, error)
}

// ThresholdOracle answers whether the owner's count of label events within the
// last timeFrameHours reached thresholdCount.
type ThresholdOracle interface {
	CheckThreshold(ctx context.Context, ownerID, label string, timeFrameHours, thresholdCount int) (bool, error)
}

// Result describes a successful evaluation. Group is the index of the first
// satisfied group, or -1.
type Result struct {
	Satisfied bool
	Group     int
	Checked   int
}

type Evaluator struct {
	metrics     MetricLookup
	oracle      ThresholdOracle
	callTimeout time.Duration
}

func NewEvaluator(metrics MetricLookup, oracle ThresholdOracle, callTimeout time.Duration) *Evaluator {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Evaluator{
		metrics:     metrics,
		oracle:      oracle,
		callTimeout: callTimeout,
	}
}

func (e *Evaluator) Evaluate(ctx context.Context, ownerID string, cond Condition) (bool, error) {
	res, err := e.Explain(ctx, ownerID, cond)
	if err != nil {
		return false, err
	}
	return res.Satisfied, nil
}

// Explain evaluates groups in order and stops at the first satisfied group.
// Within a group it stops at the first unsatisfied metric, so later metrics
// are never looked up.
func (e *Evaluator) Explain(ctx context.Context, ownerID string, cond Condition) (Result, error) {
	if len(cond) == 0 {
		return Result{Group: -1}, fmt.Errorf("%w: no groups", ErrMalformed)
	}

	res := Result{Group: -1}
	for i, group := range cond {
		if len(group) == 0 {
			return Result{Group: -1}, fmt.Errorf("%w: group %d is empty", ErrMalformed, i)
		}

		met := true
		for _, ref := range group {
			ok, err := e.check(ctx, ownerID, ref)
			if err != nil {
				return Result{Group: -1, Checked: res.Checked}, err
			}
			res.Checked++
			if !ok {
				met = false
				break
			}
		}

		if met {
			res.Satisfied = true
			res.Group = i
			return res, nil
		}
	}

	return res, nil
}

// EvaluateRaw parses raw and evaluates it.
func (e *Evaluator) EvaluateRaw(ctx context.Context, ownerID, raw string) (bool, error) {
	cond, err := Parse(raw)
	if err != nil {
		return false, err
	}
	return e.Evaluate(ctx, ownerID, cond)
}

func (e *Evaluator) check(ctx context.Context, ownerID string, ref MetricRef) (bool, error) {
	metric, err := e.lookup(ctx, ref)
	if err != nil {
		return false, newDependencyError("lookup", ref, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	ok, err := e.oracle.CheckThreshold(callCtx, ownerID, metric.Label, metric.TimeFrameHours, metric.ThresholdCount)
	if err != nil {
		return false, newDependencyError("check threshold", ref, err)
	}
	return ok, nil
}

func (e *Evaluator) lookup(ctx context.Context, ref MetricRef) (Metric, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.metrics.GetMetric(lookupCtx, ref)
}
