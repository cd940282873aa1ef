package shift

import (
	"context"
	"fmt"
	"sort"
)

// Overlaps reports whether a and b intersect. Intervals that only touch at
// an endpoint do not overlap, so back-to-back shifts are allowed.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.Finish) && a.Finish.After(b.Start)
}

// Candidate is a proposed shift checked against existing ones. ExcludeID is
// the shift being edited, if any.
type Candidate struct {
	EmployeeID EmployeeID
	ContractID *ContractID
	Interval   Interval
	ExcludeID  ShiftID
}

// FindOverlaps returns every shift in existing that conflicts with c.
// Only finished shifts of the same employee booked on the same contract are
// compared; shifts without a contract only see each other.
func FindOverlaps(c Candidate, existing []Shift) []Shift {
	var conflicts []Shift
	for _, s := range existing {
		if s.EmployeeID != c.EmployeeID || !s.SameContract(c.ContractID) {
			continue
		}
		if c.ExcludeID != "" && s.ID == c.ExcludeID {
			continue
		}
		iv, ok := s.Interval()
		if !ok {
			continue
		}
		if Overlaps(c.Interval, iv) {
			conflicts = append(conflicts, s)
		}
	}
	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].Started.Before(conflicts[j].Started)
	})
	return conflicts
}

// OverlapChecker loads the comparison set from a Store.
type OverlapChecker struct {
	Store Store
}

// Check returns the shifts overlapping c, or an empty slice.
func (oc *OverlapChecker) Check(ctx context.Context, c Candidate) ([]Shift, error) {
	existing, err := oc.Store.FindOverlapping(ctx, c.EmployeeID, c.ContractID, c.Interval.Start, c.Interval.Finish)
	if err != nil {
		return nil, fmt.Errorf("failed to load shifts for overlap check: %w", err)
	}
	return FindOverlaps(c, existing), nil
}
