// Package progress provides a fractional completion value used to roll up
// learner advancement across nested course content.
package progress

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidProgress indicates a progress pair with a non-positive denominator.
var ErrInvalidProgress = errors.New("progress requires a positive total")

// ErrInvalidProgressType indicates a progress component that is not numeric.
var ErrInvalidProgressType = errors.New("progress components must be numeric")

// Ternary is the coarse three-state classification of a progress value.
type Ternary string

const (
	// TernaryNone means no work has been completed.
	TernaryNone Ternary = "none"
	// TernaryInProgress means some but not all work has been completed.
	TernaryInProgress Ternary = "in_progress"
	// TernaryDone means all work has been completed.
	TernaryDone Ternary = "done"
)

// Progress represents a fraction done/total with 0 <= done <= total and
// total > 0. The pair is kept unreduced so that composed values preserve
// their weighted denominators.
type Progress struct {
	done  float64
	total float64
}

// New builds a Progress from the given pair. A non-positive total fails
// with ErrInvalidProgress. A done value below zero is clamped to zero and
// one above total is clamped to total.
func New(done, total float64) (Progress, error) {
	if total <= 0 {
		return Progress{}, fmt.Errorf("%w: got total %v", ErrInvalidProgress, total)
	}
	if done < 0 {
		done = 0
	}
	if done > total {
		done = total
	}
	return Progress{done: done, total: total}, nil
}

// Parse interprets a "done/total" string as produced by String.
func Parse(raw string) (Progress, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "/", 2)
	if len(parts) != 2 {
		return Progress{}, fmt.Errorf("%w: %q", ErrInvalidProgressType, raw)
	}

	done, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Progress{}, fmt.Errorf("%w: %q", ErrInvalidProgressType, parts[0])
	}
	total, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Progress{}, fmt.Errorf("%w: %q", ErrInvalidProgressType, parts[1])
	}

	return New(done, total)
}

// Frac returns the stored (done, total) pair.
func (p Progress) Frac() (float64, float64) {
	return p.done, p.total
}

// Percent returns 100 * done / total.
func (p Progress) Percent() float64 {
	if p.total <= 0 {
		return 0
	}
	return 100 * p.done / p.total
}

// Started reports whether any work has been completed.
func (p Progress) Started() bool {
	return p.done > 0
}

// InProgress reports whether some but not all work has been completed.
func (p Progress) InProgress() bool {
	return p.done > 0 && p.done < p.total
}

// Done reports whether all work has been completed.
func (p Progress) Done() bool {
	return p.total > 0 && p.done == p.total
}

// Ternary classifies the progress as none, in_progress or done.
func (p Progress) Ternary() Ternary {
	switch {
	case !p.Started():
		return TernaryNone
	case p.Done():
		return TernaryDone
	default:
		return TernaryInProgress
	}
}

// Equal compares by the numerical value of the stored pair, not the
// reduced fraction: 1/2 and 2/4 are distinct.
func (p Progress) Equal(q Progress) bool {
	return p.done == q.done && p.total == q.total
}

// String renders "done/total" with both components rounded to two
// decimals and trailing zeros stripped.
func (p Progress) String() string {
	return formatComponent(p.done) + "/" + formatComponent(p.total)
}

// Add composes two progress values by summing their pairs component-wise.
// A nil operand acts as the identity, so partially reported children fold
// in cleanly.
func Add(p, q *Progress) *Progress {
	if p == nil {
		return q
	}
	if q == nil {
		return p
	}
	return &Progress{done: p.done + q.done, total: p.total + q.total}
}

func formatComponent(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
