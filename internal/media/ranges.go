package media

import (
	"fmt"
	"sort"
	"strings"
)

// TimeRange is a half-open span [Start, End] of buffered media, in seconds
type TimeRange struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Contains reports whether t lies within the range, inclusive on both ends
func (r TimeRange) Contains(t float64) bool {
	return t >= r.Start && t <= r.End
}

// TimeRanges is an ordered list of disjoint ranges
type TimeRanges []TimeRange

// NormalizeRanges sorts ranges and merges overlapping or touching ones.
// Empty or inverted ranges are dropped.
func NormalizeRanges(in []TimeRange) TimeRanges {
	ranges := make(TimeRanges, 0, len(in))
	for _, r := range in {
		if r.End > r.Start {
			ranges = append(ranges, r)
		}
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	merged := ranges[:0]
	for _, r := range ranges {
		if n := len(merged); n > 0 && r.Start <= merged[n-1].End {
			if r.End > merged[n-1].End {
				merged[n-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Containing returns the range holding t
func (tr TimeRanges) Containing(t float64) (TimeRange, bool) {
	for _, r := range tr {
		if r.Contains(t) {
			return r, true
		}
	}
	return TimeRange{}, false
}

// End returns the end of the last range, or 0 when empty
func (tr TimeRanges) End() float64 {
	if len(tr) == 0 {
		return 0
	}
	return tr[len(tr)-1].End
}

// Clone returns an independent copy
func (tr TimeRanges) Clone() TimeRanges {
	if tr == nil {
		return nil
	}
	out := make(TimeRanges, len(tr))
	copy(out, tr)
	return out
}

func (tr TimeRanges) String() string {
	parts := make([]string, len(tr))
	for i, r := range tr {
		parts[i] = fmt.Sprintf("[%.2f-%.2f]", r.Start, r.End)
	}
	return strings.Join(parts, " ")
}
