package ledger

import "fmt"

// OrderingViolationError reports two events sharing an eventId. Identity is
// assigned once at creation, so this must never occur; when detected the
// submission aborts rather than silently deduplicating.
type OrderingViolationError struct {
	EventID string
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("ordering invariant violated: duplicate eventId %s", e.EventID)
}

// RootMismatchError reports an anchored root that does not match the root
// recomputed from the store: either the store was tampered with or the
// wrong transaction was checked.
type RootMismatchError struct {
	TxID         string
	AnchoredRoot string
	ComputedRoot string
}

func (e *RootMismatchError) Error() string {
	return fmt.Sprintf("anchored root mismatch for tx %s: anchored %s, recomputed %s",
		e.TxID, e.AnchoredRoot, e.ComputedRoot)
}

func (e *RootMismatchError) IsTampering() bool {
	return true
}
