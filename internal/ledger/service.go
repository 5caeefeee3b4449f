package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/payanchor/payanchor/internal/alert"
	"github.com/payanchor/payanchor/internal/anchor"
	"github.com/payanchor/payanchor/internal/canonical"
	"github.com/payanchor/payanchor/internal/hash"
)

// SchemaContractAnchor tags the record anchored when a live contract
// snapshot is established.
const SchemaContractAnchor = "contract_anchor_v1"

// Anchorer is the slice of the chain boundary the service drives.
type Anchorer interface {
	Submit(ctx context.Context, payload []byte) (*anchor.Receipt, error)
	SubmitAs(ctx context.Context, role anchor.SignerRole, payload []byte) (*anchor.Receipt, error)
	Verify(ctx context.Context, txID string) ([]byte, error)
}

// Service orchestrates event creation, ordering, hashing, committal and
// audit reconstruction. It holds no durable state of its own.
type Service struct {
	store      Store
	anchorer   Anchorer
	chainID    string
	contractID string
	propertyID string

	alerts *alert.Manager
	logger *slog.Logger

	now   func() time.Time
	newID func() string

	mu            sync.Mutex
	contractLocks map[string]*sync.Mutex
}

func NewService(store Store, anchorer Anchorer, chainID, contractID, propertyID string) *Service {
	return &Service{
		store:         store,
		anchorer:      anchorer,
		chainID:       chainID,
		contractID:    contractID,
		propertyID:    propertyID,
		logger:        slog.Default(),
		now:           time.Now,
		newID:         uuid.NewString,
		contractLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) SetAlertManager(am *alert.Manager) {
	s.alerts = am
}

// lockFor serializes submissions per contract so two concurrent submissions
// cannot read identical prior state and produce divergent roots.
func (s *Service) lockFor(contractID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.contractLocks[contractID]
	if !ok {
		lock = &sync.Mutex{}
		s.contractLocks[contractID] = lock
	}
	return lock
}

// PaymentInput is what the out-of-scope payment surface hands the engine.
type PaymentInput struct {
	PaymentID        string
	NoteID           string
	EventType        string
	ScheduledDueDate string
	Amount           Money
	Method           string
	StatusAfter      string
}

type SubmissionResult struct {
	Event    PaymentEvent          `json:"event"`
	Snapshot PaymentLedgerSnapshot `json:"snapshot"`
	Receipt  *anchor.Receipt       `json:"receipt"`
}

// SubmitPayment runs one full submission: assemble the event, merge and
// order the ledger, recompute every leaf from scratch, commit the root to
// the chain, then attach the returned transaction id to the new event only
// and persist the whole set. Any failure before the broadcast leaves the
// store untouched and is safe to retry wholesale.
func (s *Service) SubmitPayment(ctx context.Context, in PaymentInput) (*SubmissionResult, error) {
	if err := in.Amount.Validate(); err != nil {
		return nil, err
	}

	lock := s.lockFor(s.contractID)
	lock.Lock()
	defer lock.Unlock()

	contractRef, err := s.store.GetContractSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	event := PaymentEvent{
		SchemaVersion:     SchemaPaymentEvent,
		ContractID:        s.contractID,
		PaymentID:         in.PaymentID,
		PropertyID:        s.propertyID,
		NoteID:            in.NoteID,
		ContractAnchorRef: contractRef,
		EventType:         in.EventType,
		ScheduledDueDate:  in.ScheduledDueDate,
		ReceivedAt:        s.now().UTC(),
		Amount:            in.Amount,
		Method:            in.Method,
		EventID:           s.newID(),
		StatusAfter:       in.StatusAfter,
	}

	stored, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	events := append(stored, event)
	SortEvents(events)
	if err := checkEventIdentity(events); err != nil {
		return nil, err
	}

	root, leaves, err := computeLedgerRoot(events)
	if err != nil {
		return nil, err
	}

	snapshot := PaymentLedgerSnapshot{
		SchemaVersion:      SchemaLedgerSnapshot,
		ContractID:         s.contractID,
		ChainID:            s.chainID,
		PaymentLedgerRoot:  root,
		IncludedEventCount: len(leaves),
		SnapshotTimestamp:  s.now().UTC(),
		OrderingRule:       OrderingRule,
	}

	payload, err := canonical.Encode(snapshot)
	if err != nil {
		return nil, err
	}

	receipt, err := s.anchorer.Submit(ctx, payload)
	if err != nil {
		s.reportSubmitFailure(err)
		return nil, err
	}

	snapshot.LedgerTxHash = receipt.TxID
	for i := range events {
		if events[i].EventID == event.EventID {
			events[i].AnchoredTxHash = receipt.TxID
		}
	}
	event.AnchoredTxHash = receipt.TxID

	if err := s.store.ReplaceAll(ctx, events); err != nil {
		// The anchor already landed; the durable write did not. Surfaced
		// as-is so the caller knows the ledger and chain disagree.
		return nil, fmt.Errorf("anchored as %s but failed to persist ledger: %w", receipt.TxID, err)
	}

	s.logger.Info("payment event anchored",
		"contract", s.contractID,
		"event", event.EventID,
		"root", root,
		"tx", receipt.TxID,
		"events", len(events))

	return &SubmissionResult{Event: event, Snapshot: snapshot, Receipt: receipt}, nil
}

func (s *Service) reportSubmitFailure(err error) {
	var confTimeout *anchor.ConfirmationTimeoutError
	if errors.As(err, &confTimeout) {
		// Ambiguous outcome: the transaction may still land. Callers must
		// verify the carried tx id before any resubmission.
		s.logger.Warn("anchor confirmation timed out, status unknown",
			"contract", s.contractID, "tx", confTimeout.TxID)
		if s.alerts != nil {
			_ = s.alerts.SendAnchorFailureAlert(s.contractID, "confirmation", err.Error())
		}
		return
	}

	s.logger.Error("anchor submission failed", "contract", s.contractID, "error", err)
	if s.alerts != nil {
		_ = s.alerts.SendAnchorFailureAlert(s.contractID, "broadcast", err.Error())
	}
}

// AuditPackage is the self-contained exportable verification artifact: a
// third party can re-derive the root from events and leaves and compare it
// against what was anchored on-chain.
type AuditPackage struct {
	ContractSnapshot   ContractSnapshotRef `json:"contractSnapshot"`
	OrderingRule       string              `json:"orderingRule"`
	Events             []PaymentEvent      `json:"events"`
	ComputedRoot       string              `json:"computedRoot"`
	Leaves             []string            `json:"leaves"`
	IncludedEventCount int                 `json:"includedEventCount"`
}

// BuildAuditPackage recomputes ordering and root fresh from the store. It
// never trusts a previously cached snapshot.
func (s *Service) BuildAuditPackage(ctx context.Context) (*AuditPackage, error) {
	contractRef, err := s.store.GetContractSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	events, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	SortEvents(events)
	if err := checkEventIdentity(events); err != nil {
		return nil, err
	}

	root, leaves, err := computeLedgerRoot(events)
	if err != nil {
		return nil, err
	}

	return &AuditPackage{
		ContractSnapshot:   contractRef,
		OrderingRule:       OrderingRule,
		Events:             events,
		ComputedRoot:       root,
		Leaves:             leaves,
		IncludedEventCount: len(events),
	}, nil
}

// AnchorContract digests the contract terms and credit summary, anchors a
// contract record under the contract signer role, and replaces the stored
// snapshot reference (GENESIS becomes LIVE).
func (s *Service) AnchorContract(ctx context.Context, terms, credit interface{}) (*ContractSnapshotRef, *anchor.Receipt, error) {
	// Snapshot replacement must not interleave with an in-flight
	// submission reading the current ref.
	lock := s.lockFor(s.contractID)
	lock.Lock()
	defer lock.Unlock()

	contractHash, err := hash.Digest(terms)
	if err != nil {
		return nil, nil, err
	}
	creditHash, err := hash.Digest(credit)
	if err != nil {
		return nil, nil, err
	}

	record := struct {
		SchemaVersion string    `json:"schemaVersion"`
		ContractID    string    `json:"contractId"`
		PropertyID    string    `json:"propertyId"`
		ChainID       string    `json:"chainId"`
		ContractHash  string    `json:"contractHash"`
		CreditHash    string    `json:"creditHash"`
		AnchoredAt    time.Time `json:"anchoredAt"`
	}{
		SchemaVersion: SchemaContractAnchor,
		ContractID:    s.contractID,
		PropertyID:    s.propertyID,
		ChainID:       s.chainID,
		ContractHash:  contractHash,
		CreditHash:    creditHash,
		AnchoredAt:    s.now().UTC(),
	}

	anchorHash, err := hash.Digest(record)
	if err != nil {
		return nil, nil, err
	}

	payload, err := canonical.Encode(record)
	if err != nil {
		return nil, nil, err
	}

	receipt, err := s.anchorer.SubmitAs(ctx, anchor.RoleContract, payload)
	if err != nil {
		s.reportSubmitFailure(err)
		return nil, nil, err
	}

	ref := ContractSnapshotRef{
		SchemaVersion:  SchemaContractSnapshotRef,
		ContractID:     s.contractID,
		PropertyID:     s.propertyID,
		ChainID:        s.chainID,
		ContractHash:   contractHash,
		CreditHash:     creditHash,
		AnchorHash:     anchorHash,
		ContractTxHash: receipt.TxID,
		AnchoredAt:     record.AnchoredAt,
		Source:         SourceLive,
	}

	if err := s.store.SetContractSnapshot(ctx, ref); err != nil {
		return nil, nil, fmt.Errorf("contract anchored as %s but failed to persist snapshot: %w", receipt.TxID, err)
	}

	s.logger.Info("contract anchored", "contract", s.contractID, "tx", receipt.TxID)

	return &ref, receipt, nil
}

type VerificationResult struct {
	TxID         string `json:"txId"`
	AnchoredRoot string `json:"anchoredRoot"`
	ComputedRoot string `json:"computedRoot"`
	EventCount   int    `json:"eventCount"`
	Match        bool   `json:"match"`
}

// VerifyAnchoredSnapshot reads back an anchored ledger snapshot and checks
// its root against a fresh recomputation from the store. A mismatch means
// the store no longer matches what was anchored.
func (s *Service) VerifyAnchoredSnapshot(ctx context.Context, txID string) (*VerificationResult, error) {
	payload, err := s.anchorer.Verify(ctx, txID)
	if err != nil {
		return nil, err
	}

	var snap PaymentLedgerSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("anchored payload of %s is not a ledger snapshot: %w", txID, err)
	}
	if snap.SchemaVersion != SchemaLedgerSnapshot {
		return nil, fmt.Errorf("anchored payload of %s carries schema %q, refusing to interpret as %s",
			txID, snap.SchemaVersion, SchemaLedgerSnapshot)
	}

	pkg, err := s.BuildAuditPackage(ctx)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{
		TxID:         txID,
		AnchoredRoot: snap.PaymentLedgerRoot,
		ComputedRoot: pkg.ComputedRoot,
		EventCount:   pkg.IncludedEventCount,
		Match:        snap.PaymentLedgerRoot == pkg.ComputedRoot,
	}

	if !result.Match {
		s.logger.Error("anchored root mismatch",
			"contract", s.contractID, "tx", txID,
			"anchored", snap.PaymentLedgerRoot, "computed", pkg.ComputedRoot)
		if s.alerts != nil {
			_ = s.alerts.SendRootMismatchAlert(s.contractID, txID, snap.PaymentLedgerRoot, pkg.ComputedRoot)
		}
		return result, &RootMismatchError{
			TxID:         txID,
			AnchoredRoot: snap.PaymentLedgerRoot,
			ComputedRoot: pkg.ComputedRoot,
		}
	}

	return result, nil
}

// Clear wipes the entire store. Administrative reset only; irreversible.
func (s *Service) Clear(ctx context.Context) error {
	lock := s.lockFor(s.contractID)
	lock.Lock()
	defer lock.Unlock()

	return s.store.Clear(ctx)
}

func checkEventIdentity(events []PaymentEvent) error {
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		if seen[e.EventID] {
			return &OrderingViolationError{EventID: e.EventID}
		}
		seen[e.EventID] = true
	}
	return nil
}

func computeLedgerRoot(ordered []PaymentEvent) (string, []string, error) {
	leaves := make([]string, 0, len(ordered))
	for _, e := range ordered {
		leaf, err := e.LeafHash()
		if err != nil {
			return "", nil, err
		}
		leaves = append(leaves, leaf)
	}

	root, err := hash.ComputeRoot(leaves)
	if err != nil {
		return "", nil, err
	}
	return root, leaves, nil
}
