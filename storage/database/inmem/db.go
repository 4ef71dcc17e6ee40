package inmemdb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/gateway"
	"github.com/trezcool/feeledger/core/payment"
	"github.com/trezcool/feeledger/core/tenant"
	"github.com/trezcool/feeledger/core/user"
)

type tables struct {
	organizations map[string]tenant.Organization
	users         map[string]user.User
	students      map[string]fee.Student
	years         map[string]fee.AcademicYear
	categories    map[string]fee.Category
	fees          map[string]fee.Fee
	payments      map[string]payment.Payment
	transactions  map[string]gateway.Transaction
}

func newTables() tables {
	return tables{
		organizations: make(map[string]tenant.Organization),
		users:         make(map[string]user.User),
		students:      make(map[string]fee.Student),
		years:         make(map[string]fee.AcademicYear),
		categories:    make(map[string]fee.Category),
		fees:          make(map[string]fee.Fee),
		payments:      make(map[string]payment.Payment),
		transactions:  make(map[string]gateway.Transaction),
	}
}

// DB is an in-memory store for tests and the "memory" storage engine.
//
// Transactions are serialized: RunInTx holds txMu for the whole callback (which makes every
// read inside it a locking read) and restores a snapshot of the tables when the callback fails.
// Writes made outside transactions wait for the running one, so a rollback never discards them.
type DB struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	t    tables
}

var _ core.TxRunner = (*DB)(nil) // interface compliance check

func NewDB() *DB {
	return &DB{t: newTables()}
}

func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snap := db.snapshot()
	if err := fn(txExec{}); err != nil {
		db.mu.Lock()
		db.t = snap
		db.mu.Unlock()
		return err
	}
	return nil
}

// lockWrite locks the tables for a single write and returns the matching unlock.
// Writes issued inside RunInTx already hold txMu.
func (db *DB) lockWrite(exec []core.DBExecutor) (unlock func()) {
	if inTx(exec) {
		db.mu.Lock()
		return db.mu.Unlock
	}
	db.txMu.Lock()
	db.mu.Lock()
	return func() {
		db.mu.Unlock()
		db.txMu.Unlock()
	}
}

func inTx(exec []core.DBExecutor) bool {
	if len(exec) == 0 {
		return false
	}
	_, ok := exec[0].(txExec)
	return ok
}

var errNoSQL = errors.New("inmemdb: SQL is not supported")

// txExec is handed to RunInTx callbacks. It only marks repository calls as transactional.
type txExec struct{}

var _ core.DBExecutor = txExec{} // interface compliance check

func (txExec) Exec(string, ...interface{}) (sql.Result, error) { return nil, errNoSQL }

func (txExec) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}

func (txExec) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errNoSQL }

func (txExec) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (txExec) QueryRow(string, ...interface{}) *sql.Row { return nil }

func (txExec) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }

func (db *DB) snapshot() tables {
	db.mu.RLock()
	defer db.mu.RUnlock()

	snap := newTables()
	for k, v := range db.t.organizations {
		snap.organizations[k] = v
	}
	for k, v := range db.t.users {
		snap.users[k] = copyUser(v)
	}
	for k, v := range db.t.students {
		snap.students[k] = v
	}
	for k, v := range db.t.years {
		snap.years[k] = v
	}
	for k, v := range db.t.categories {
		snap.categories[k] = v
	}
	for k, v := range db.t.fees {
		snap.fees[k] = v
	}
	for k, v := range db.t.payments {
		snap.payments[k] = v
	}
	for k, v := range db.t.transactions {
		snap.transactions[k] = v
	}
	return snap
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t = newTables()
}
