package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/payanchor/payanchor/internal/ledger"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS payment_ledger (
	key TEXT PRIMARY KEY,
	doc JSONB NOT NULL
)`

// PostgresStore implements the same whole-collection semantics as the bolt
// backend over a single-table jsonb document layout.
type PostgresStore struct {
	conn *pgx.Conn
}

func NewPostgres(ctx context.Context, connStr string) (*PostgresStore, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := conn.Exec(ctx, pgSchema); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{conn: conn}, nil
}

func (s *PostgresStore) Close() error {
	return s.conn.Close(context.Background())
}

func (s *PostgresStore) getDoc(ctx context.Context, key string, dest interface{}) (bool, error) {
	var doc []byte
	err := s.conn.QueryRow(ctx, "SELECT doc FROM payment_ledger WHERE key = $1", key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	if err := json.Unmarshal(doc, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *PostgresStore) putDoc(ctx context.Context, key string, value interface{}) error {
	doc, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	_, err = s.conn.Exec(ctx,
		`INSERT INTO payment_ledger (key, doc) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc`, key, doc)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) GetAll(ctx context.Context) ([]ledger.PaymentEvent, error) {
	var events []ledger.PaymentEvent
	if _, err := s.getDoc(ctx, "events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *PostgresStore) ReplaceAll(ctx context.Context, events []ledger.PaymentEvent) error {
	return s.putDoc(ctx, "events", events)
}

func (s *PostgresStore) GetContractSnapshot(ctx context.Context) (ledger.ContractSnapshotRef, error) {
	ref := ledger.Genesis()
	if _, err := s.getDoc(ctx, "contract_snapshot", &ref); err != nil {
		return ledger.ContractSnapshotRef{}, err
	}
	return ref, nil
}

func (s *PostgresStore) SetContractSnapshot(ctx context.Context, ref ledger.ContractSnapshotRef) error {
	return s.putDoc(ctx, "contract_snapshot", ref)
}

// Clear wipes the entire store. Irreversible; intended for test/reset use.
func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, "DELETE FROM payment_ledger")
	if err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}
	return nil
}
