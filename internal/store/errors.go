package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update violates a uniqueness
// invariant (material number, dropdown type/value pair, user email).
var ErrConflict = errors.New("already exists")

// ErrNoFields is returned by patch updates given an empty patch. The row
// is untouched.
var ErrNoFields = errors.New("no fields to update")

// ErrDropdownActive is returned when a hard delete is attempted on a
// dropdown that is still active.
var ErrDropdownActive = errors.New("dropdown is still active")

// ErrInvalidReference is returned when a material insert or update
// names a dropdown id that does not exist.
var ErrInvalidReference = errors.New("referenced dropdown does not exist")

// DropdownInUseError is returned when a hard delete is attempted on a
// dropdown still referenced by materials. Count is the number of
// referencing materials.
type DropdownInUseError struct {
	Count int
}

func (e *DropdownInUseError) Error() string {
	return fmt.Sprintf("dropdown is in use by %d material(s)", e.Count)
}

// Postgres error codes the stores classify.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// classify maps driver errors onto the store's sentinels. Unique and
// foreign-key violations are the transactional backstop for the
// application-level pre-checks, so they must surface as the same
// errors. A 23503 here comes from a write into materials, so it means a
// dangling dropdown reference; the delete-restriction case is handled
// at the dropdown delete site via isForeignKeyViolation.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return ErrConflict
		case pqForeignKeyViolation:
			return ErrInvalidReference
		}
	}
	return err
}

// isForeignKeyViolation reports whether err is the driver's 23503.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}
