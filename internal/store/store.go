// Package store contains the relational repositories. Each repository
// wraps an injected *sql.DB and speaks parameterized SQL; uniqueness and
// referential invariants are enforced by the schema's constraints with
// application-level checks as the early exit.
package store

import "strconv"

func itoa(i int) string {
	return strconv.Itoa(i)
}
