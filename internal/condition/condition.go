// Package condition parses and evaluates action conditions.
//
// A condition is an OR of groups, each group an AND of metric references:
//
//	[["m1", "m2"], ["m3"]]  =>  (m1 AND m2) OR m3
package condition

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned for expressions that are not a non-empty list of
// non-empty lists of metric identifiers. Redelivery cannot fix it.
var ErrMalformed = errors.New("malformed condition")

// MetricRef identifies a metric definition held by the metrics service.
type MetricRef string

// Group is satisfied when every metric in it is satisfied.
type Group []MetricRef

// Condition is satisfied when any of its groups is satisfied.
type Condition []Group

func Parse(raw string) (Condition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrMalformed)
	}

	var groups [][]string
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no groups", ErrMalformed)
	}

	cond := make(Condition, 0, len(groups))
	for i, g := range groups {
		if len(g) == 0 {
			return nil, fmt.Errorf("%w: group %d is empty", ErrMalformed, i)
		}
		group := make(Group, 0, len(g))
		for j, id := range g {
			id = strings.TrimSpace(id)
			if id == "" {
				return nil, fmt.Errorf("%w: group %d metric %d is blank", ErrMalformed, i, j)
			}
			group = append(group, MetricRef(id))
		}
		cond = append(cond, group)
	}

	return cond, nil
}
