package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
)

type badConnDB struct {
	err error
}

func (db badConnDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, db.err
}
func (db badConnDB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return db.err
}
func (db badConnDB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return db.err
}
func (db badConnDB) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	return nil
}
func (db badConnDB) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	return nil, db.err
}
func (db badConnDB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, db.err
}

func TestAtomic_lostConnection(t *testing.T) {
	err := Atomic(context.Background(), badConnDB{err: driver.ErrBadConn}, func(tx DBExecutor) error {
		t.Fatal("transaction body should not run")
		return nil
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsShutdown(err) {
		t.Errorf("expected a shutdown error; got %v", err)
	}

	err = Atomic(context.Background(), badConnDB{err: errors.New("deadlock")}, func(tx DBExecutor) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if IsShutdown(err) {
		t.Errorf("ordinary errors should not trigger a shutdown; got %v", err)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError(errors.New("invalid payload"), FieldError{Field: "code", Error: "this field is required"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError; got %T", err)
	}
	if vErr.Error() != "invalid payload" {
		t.Errorf("Error() = %q", vErr.Error())
	}
	if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "code" {
		t.Errorf("unexpected fields: %+v", vErr.Fields)
	}

	if IsShutdown(err) {
		t.Error("validation errors should not trigger a shutdown")
	}
}
