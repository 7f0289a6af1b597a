package index

import "errors"

var (
	// ErrDuplicateKey is returned when inserting a duplicate key in a unique index
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrKeyNotFound is returned when a key is not found
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidOrder names an invalid B-tree order. NewBTree does not
	// return it: it raises any order below 3 to 3.
	ErrInvalidOrder = errors.New("invalid B-tree order")

	// ErrColumnAlreadyIndexed is returned by CreateIndex for a column that
	// already has a posting map.
	ErrColumnAlreadyIndexed = errors.New("index: column already indexed")

	// ErrColumnNotIndexed is returned by DropIndex for a column with no
	// posting map.
	ErrColumnNotIndexed = errors.New("index: column not indexed")

	// ErrCannotDropKeyIndex is returned by DropIndex for the primary-key
	// column, which is always indexed.
	ErrCannotDropKeyIndex = errors.New("index: cannot drop primary key index")
)
