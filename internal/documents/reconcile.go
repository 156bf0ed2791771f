package documents

import "math"

// Reconcile gates completion of a document. For each line it compares the
// required total (active LineSerial sum) against the collected total
// (active Route sum) under the given tolerance policy, returning the first
// violation or nil when every line passes.
//
// The pass is read-only: callers run it before any mutation.
func Reconcile(totals []LineTotals, policy Policy) *Violation {
	// Both tolerances open is the global escape hatch: any collected
	// quantity is acceptable, uncollected lines included.
	if policy.AllowLess && policy.AllowMore {
		return nil
	}
	for _, t := range totals {
		if t.Collected <= QtyEpsilon {
			if policy.RequireAllCollected {
				return violation(ViolationNotCollected, t)
			}
			// Optional line: no check until the first unit is collected.
			continue
		}
		switch {
		case !policy.AllowLess && !policy.AllowMore:
			if math.Abs(t.Required-t.Collected) > QtyEpsilon {
				return violation(ViolationExactMismatch, t)
			}
		case policy.AllowLess:
			if t.Collected > t.Required+QtyEpsilon {
				return violation(ViolationOverCollected, t)
			}
		case policy.AllowMore:
			if t.Collected < t.Required-QtyEpsilon {
				return violation(ViolationUnderCollected, t)
			}
		}
	}
	return nil
}

// CheckScanCapacity is the incremental form of Reconcile used during
// barcode ingestion: only the "must not exceed required" half of the rule
// table applies, since a partial collection is never under-collected yet.
func CheckScanCapacity(t LineTotals, add float64, policy Policy) *Violation {
	if policy.AllowMore {
		return nil
	}
	if t.Collected+add > t.Required+QtyEpsilon {
		after := t
		after.Collected += add
		return violation(ViolationOverCollected, after)
	}
	return nil
}

func violation(kind ViolationKind, t LineTotals) *Violation {
	return &Violation{
		Kind:       kind,
		LineID:     t.LineID,
		StockCode:  t.StockCode,
		ConfigCode: t.ConfigCode,
		Required:   t.Required,
		Collected:  t.Collected,
	}
}
