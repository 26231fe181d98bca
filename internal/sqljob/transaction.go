package sqljob

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lsst/qserv-sub016/internal/qerr"
)

// TransactionState is a database-scoped super-transaction's lifecycle
// state, spanning the set of per-worker transactions a SqlCreateDbJob
// family of requests opens while ingest is in progress.
type TransactionState int

const (
	STARTED TransactionState = iota
	ABORTED
	COMMITTED
)

func (s TransactionState) String() string {
	switch s {
	case STARTED:
		return "STARTED"
	case ABORTED:
		return "ABORTED"
	case COMMITTED:
		return "COMMITTED"
	default:
		return "UNKNOWN"
	}
}

// Transaction tracks one super-transaction opened against a database.
type Transaction struct {
	ID       uuid.UUID
	Database string
	State    TransactionState
}

// TransactionLookup is a registry of in-flight and recently concluded
// Transactions, keyed by ID. It is the per-database analogue of
// internal/control's request registry: a small mutex-guarded map, no
// persistence, since a transaction's lifetime never outlives a single
// Controller process.
type TransactionLookup struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*Transaction
}

// NewTransactionLookup creates an empty registry.
func NewTransactionLookup() *TransactionLookup {
	return &TransactionLookup{byID: make(map[uuid.UUID]*Transaction)}
}

// Begin opens a new transaction against database and registers it.
func (l *TransactionLookup) Begin(database string) *Transaction {
	t := &Transaction{ID: uuid.Must(uuid.NewV7()), Database: database, State: STARTED}
	l.mu.Lock()
	l.byID[t.ID] = t
	l.mu.Unlock()
	return t
}

// Lookup returns the transaction for id, or qerr.ErrNotFound.
func (l *TransactionLookup) Lookup(id uuid.UUID) (*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.byID[id]
	if !ok {
		return nil, fmt.Errorf("sqljob: transaction %s: %w", id, qerr.ErrNotFound)
	}
	return t, nil
}

// Commit marks a STARTED transaction COMMITTED. Returns qerr.ErrInvalidArg
// if the transaction is not STARTED.
func (l *TransactionLookup) Commit(id uuid.UUID) error {
	return l.transition(id, COMMITTED)
}

// Abort marks a STARTED transaction ABORTED.
func (l *TransactionLookup) Abort(id uuid.UUID) error {
	return l.transition(id, ABORTED)
}

func (l *TransactionLookup) transition(id uuid.UUID, to TransactionState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("sqljob: transaction %s: %w", id, qerr.ErrNotFound)
	}
	if t.State != STARTED {
		return fmt.Errorf("sqljob: transaction %s already %s: %w", id, t.State, qerr.ErrInvalidArg)
	}
	t.State = to
	return nil
}

// ByDatabase returns every transaction (of any state) opened against
// database.
func (l *TransactionLookup) ByDatabase(database string) []*Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Transaction
	for _, t := range l.byID {
		if t.Database == database {
			out = append(out, t)
		}
	}
	return out
}
