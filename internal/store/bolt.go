package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/payanchor/payanchor/internal/ledger"
)

var (
	ledgerBucket   = []byte("ledger")
	metadataBucket = []byte("metadata")

	eventsKey   = []byte("events")
	snapshotKey = []byte("contract_snapshot")
)

// BoltStore keeps the whole event collection under a single key so every
// access is an atomic whole-collection read or overwrite.
type BoltStore struct {
	db *bolt.DB
}

func NewBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ledgerBucket, metadataBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) GetAll(_ context.Context) ([]ledger.PaymentEvent, error) {
	var events []ledger.PaymentEvent

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(ledgerBucket).Get(eventsKey)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &events)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return events, nil
}

func (s *BoltStore) ReplaceAll(_ context.Context, events []ledger.PaymentEvent) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ledgerBucket).Put(eventsKey, data)
	})
}

func (s *BoltStore) GetContractSnapshot(_ context.Context) (ledger.ContractSnapshotRef, error) {
	ref := ledger.Genesis()

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(metadataBucket).Get(snapshotKey)
		if data == nil {
			return nil // nothing anchored yet: genesis fallback
		}
		return json.Unmarshal(data, &ref)
	})
	if err != nil {
		return ledger.ContractSnapshotRef{}, fmt.Errorf("failed to read contract snapshot: %w", err)
	}

	return ref, nil
}

func (s *BoltStore) SetContractSnapshot(_ context.Context, ref ledger.ContractSnapshotRef) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to marshal contract snapshot: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metadataBucket).Put(snapshotKey, data)
	})
}

// Clear wipes the entire store. Irreversible; intended for test/reset use.
func (s *BoltStore) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(ledgerBucket).Delete(eventsKey); err != nil {
			return err
		}
		return tx.Bucket(metadataBucket).Delete(snapshotKey)
	})
}
