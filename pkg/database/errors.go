package database

import "errors"

var (
	// ErrTableNotFound is returned when a table name has no matching table.
	ErrTableNotFound = errors.New("database: table not found")

	// ErrTableExists is returned by CreateTable when the name is taken.
	ErrTableExists = errors.New("database: table already exists")

	// ErrInvalidColumnCount is returned when a row's column count doesn't
	// match the table's schema.
	ErrInvalidColumnCount = errors.New("database: invalid column count")

	// ErrInvalidColumn is returned when a column index is out of range.
	ErrInvalidColumn = errors.New("database: column index out of range")

	// ErrRowNotFound is returned when a primary-key lookup finds nothing.
	ErrRowNotFound = errors.New("database: row not found")

	// ErrRowDeleted is returned when operating on a logically deleted row.
	ErrRowDeleted = errors.New("database: row deleted")

	// ErrDuplicateKey is returned by Insert when the primary-key value is
	// already present.
	ErrDuplicateKey = errors.New("database: duplicate primary key")

	// ErrDatabaseClosed is returned when operating on a closed database.
	ErrDatabaseClosed = errors.New("database: database is closed")

	// ErrInvariantViolation marks on-disk state that contradicts the
	// version-chain invariants (e.g. a dangling indirection pointer).
	ErrInvariantViolation = errors.New("database: internal invariant violation")
)
