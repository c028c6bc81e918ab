package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// DriverError is the driver-neutral view of a Postgres server error raised
// through either pgx or lib/pq.
type DriverError struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// AsDriverError extracts the Postgres error from err's chain.
func AsDriverError(err error) (DriverError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return DriverError{
			Code:       pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Detail:     pgErr.Detail,
			Message:    pgErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return DriverError{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return DriverError{}, false
}

// LogFields returns the populated fields of d keyed for structured logs.
func (d DriverError) LogFields() map[string]any {
	fields := make(map[string]any, 6)
	for key, value := range map[string]string{
		"pg_code":       d.Code,
		"pg_constraint": d.Constraint,
		"pg_table":      d.Table,
		"pg_column":     d.Column,
		"pg_detail":     d.Detail,
		"pg_message":    d.Message,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

// IsUniqueViolation reports whether err is a unique constraint violation on
// any supported driver. When constraintName is set, only violations of that
// constraint (or index) match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if driverErr, ok := AsDriverError(err); ok {
		return driverErr.Code == pgUniqueViolation && (constraintName == "" || driverErr.Constraint == constraintName)
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}
