package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payanchor/payanchor/internal/hash"
)

// Persisted schema version tags. Any field-set change requires a new tag;
// old-version records are never reinterpreted under new-version rules.
const (
	SchemaPaymentEvent        = "payment_event_v1"
	SchemaLedgerSnapshot      = "payment_ledger_snapshot_v1"
	SchemaContractSnapshotRef = "contract_snapshot_ref_v1"
)

// OrderingRule is the fixed descriptive string recorded in every snapshot
// and audit package. The rule itself must never drift: receivedAt ascending,
// ties broken by eventId ascending lexicographic.
const OrderingRule = "receivedAt asc, eventId asc"

type SnapshotSource string

const (
	SourceGenesis SnapshotSource = "GENESIS"
	SourceLive    SnapshotSource = "LIVE"
)

// Money carries a payment amount split into principal and interest.
type Money struct {
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
}

func (m Money) Validate() error {
	if m.Currency == "" {
		return fmt.Errorf("money: currency is required")
	}
	if m.Total.IsNegative() {
		return fmt.Errorf("money: total %s is negative", m.Total)
	}
	if !m.Principal.Add(m.Interest).Equal(m.Total) {
		return fmt.Errorf("money: principal %s + interest %s != total %s",
			m.Principal, m.Interest, m.Total)
	}
	return nil
}

// ContractSnapshotRef is an immutable reference to a previously anchored
// contract. Before any live anchoring exists, Genesis() is used.
type ContractSnapshotRef struct {
	SchemaVersion  string         `json:"schemaVersion"`
	ContractID     string         `json:"contractId"`
	PropertyID     string         `json:"propertyId"`
	ChainID        string         `json:"chainId"`
	ContractHash   string         `json:"contractHash"`
	CreditHash     string         `json:"creditHash"`
	AnchorHash     string         `json:"anchorHash"`
	ContractTxHash string         `json:"contractTxHash"`
	AnchoredAt     time.Time      `json:"anchoredAt"`
	Source         SnapshotSource `json:"source"`
}

// Genesis returns the fixed fallback snapshot used before a real contract
// anchoring has occurred.
func Genesis() ContractSnapshotRef {
	return ContractSnapshotRef{
		SchemaVersion: SchemaContractSnapshotRef,
		Source:        SourceGenesis,
	}
}

// PaymentEvent is one append-only ledger entry. Created once, mutated
// exactly once to attach AnchoredTxHash, never deleted individually.
type PaymentEvent struct {
	SchemaVersion     string              `json:"schemaVersion"`
	ContractID        string              `json:"contractId"`
	PaymentID         string              `json:"paymentId"`
	PropertyID        string              `json:"propertyId"`
	NoteID            string              `json:"noteId,omitempty"`
	ContractAnchorRef ContractSnapshotRef `json:"contractAnchorRef"`
	EventType         string              `json:"eventType"`
	ScheduledDueDate  string              `json:"scheduledDueDate"`
	ReceivedAt        time.Time           `json:"receivedAt"`
	Amount            Money               `json:"amount"`
	Method            string              `json:"method"`
	EventID           string              `json:"eventId"`
	StatusAfter       string              `json:"statusAfter"`
	AnchoredTxHash    string              `json:"anchoredTxHash,omitempty"`
}

// LeafHash digests the event's canonical encoding excluding AnchoredTxHash.
// The exclusion is mandatory: that field is attached only after the root
// depending on this hash has been committed, so including it would make the
// leaf unstable across the moment of attachment.
func (e PaymentEvent) LeafHash() (string, error) {
	e.AnchoredTxHash = ""
	return hash.Digest(e)
}

// PaymentLedgerSnapshot summarizes the full ordered ledger at one point in
// time. It is derived and fully recomputable from the event store; it is
// never the sole source of truth.
type PaymentLedgerSnapshot struct {
	SchemaVersion      string    `json:"schemaVersion"`
	ContractID         string    `json:"contractId"`
	ChainID            string    `json:"chainId"`
	PaymentLedgerRoot  string    `json:"paymentLedgerRoot"`
	IncludedEventCount int       `json:"includedEventCount"`
	SnapshotTimestamp  time.Time `json:"snapshotTimestamp"`
	LedgerTxHash       string    `json:"ledgerTxHash,omitempty"`
	OrderingRule       string    `json:"orderingRule"`
}

// SortEvents applies the total ordering rule in place.
func SortEvents(events []PaymentEvent) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].ReceivedAt.Equal(events[j].ReceivedAt) {
			return events[i].ReceivedAt.Before(events[j].ReceivedAt)
		}
		return events[i].EventID < events[j].EventID
	})
}

// Store owns the durable event list and the current contract snapshot.
// Every access is an atomic whole-collection read or overwrite.
type Store interface {
	GetAll(ctx context.Context) ([]PaymentEvent, error)
	ReplaceAll(ctx context.Context, events []PaymentEvent) error
	GetContractSnapshot(ctx context.Context) (ContractSnapshotRef, error)
	SetContractSnapshot(ctx context.Context, ref ContractSnapshotRef) error
	Clear(ctx context.Context) error
}
