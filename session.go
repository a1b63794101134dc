package sheetsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
)

// driverName is the database/sql driver registered by modernc.org/sqlite.
const driverName = "sqlite"

// sqliteConstraintCode is the SQLITE_CONSTRAINT primary result code.
const sqliteConstraintCode = 19

// StatementEvent describes one executed statement. Events are emitted after
// execution, whether it succeeded or not.
type StatementEvent struct {
	// SQL is the statement text that was executed.
	SQL string
	// Rows is the number of rows bound to the statement (0 for DDL).
	Rows int
	// Err is the execution error, nil on success.
	Err error
}

// StatementObserver receives statement events for audit logging. Observers
// must not issue further statements on the session.
type StatementObserver func(StatementEvent)

// Session owns one database connection for the lifetime of a CLI
// invocation. Every component that issues SQL receives the session
// explicitly; there is no shared global connection state.
type Session struct {
	db        *sql.DB
	inMemory  bool
	observers []StatementObserver
}

// NewSession opens a SQLite database at path, or an in-memory database when
// path is empty.
func NewSession(path string) (*Session, error) {
	dsn := path
	inMemory := false
	if dsn == "" {
		dsn = ":memory:"
		inMemory = true
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dsn, err)
	}
	// The connection is exclusively owned by one logical operation at a
	// time; a second pooled connection would see a different in-memory
	// database.
	db.SetMaxOpenConns(1)
	return &Session{db: db, inMemory: inMemory}, nil
}

// InMemory reports whether the session runs against an in-memory database.
func (s *Session) InMemory() bool {
	return s.inMemory
}

// Observe registers an observer for statement events.
func (s *Session) Observe(observer StatementObserver) {
	s.observers = append(s.observers, observer)
}

// Close closes the database connection.
func (s *Session) Close() error {
	return s.db.Close()
}

// notify delivers an event to all registered observers.
func (s *Session) notify(event StatementEvent) {
	for _, observer := range s.observers {
		observer(event)
	}
}

// Tx is one scoped transaction on the session.
type Tx struct {
	tx      *sql.Tx
	session *Session
	ctx     context.Context
}

// Exec executes a single statement inside the transaction.
func (t *Tx) Exec(sqlText string) error {
	_, err := t.tx.ExecContext(t.ctx, sqlText)
	t.session.notify(StatementEvent{SQL: sqlText, Err: err})
	if err != nil {
		return fmt.Errorf("statement failed: %w", err)
	}
	return nil
}

// ExecMany executes a statement once per row of args, as one unit: either
// every row is applied or the enclosing transaction fails. There is no
// row-by-row partial-failure tolerance.
func (t *Tx) ExecMany(sqlText string, rows [][]any) error {
	stmt, err := t.tx.PrepareContext(t.ctx, sqlText)
	if err != nil {
		t.session.notify(StatementEvent{SQL: sqlText, Rows: len(rows), Err: err})
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, row := range rows {
		if _, err := stmt.ExecContext(t.ctx, row...); err != nil {
			t.session.notify(StatementEvent{SQL: sqlText, Rows: len(rows), Err: err})
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	t.session.notify(StatementEvent{SQL: sqlText, Rows: len(rows)})
	return nil
}

// Query runs a query inside the transaction and returns its rows.
func (t *Tx) Query(sqlText string) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(t.ctx, sqlText)
	t.session.notify(StatementEvent{SQL: sqlText, Err: err})
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}

// Apply runs fn inside a transaction scope: committed on clean return,
// rolled back otherwise. A constraint violation is recovered here — the
// transaction becomes an uncommitted no-op and the error is swallowed after
// notifying observers. Every other error is re-raised after rollback.
func (s *Session) Apply(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: tx, session: s, ctx: ctx}); err != nil {
		rollbackErr := tx.Rollback()
		if isConstraintViolation(err) {
			// Integrity violations are logged and discarded; the batch they
			// belong to simply does not land.
			return nil
		}
		if rollbackErr != nil {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rollbackErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isConstraintViolation reports whether err is a SQLITE_CONSTRAINT failure
// (uniqueness or integrity), which is recovered at the transaction boundary
// rather than propagated.
func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}
