// Package sqlxrepos implements the domain repositories over Postgres using
// sqlx. Uniqueness rules live in the schema; repositories translate
// constraint violations into domain errors.
package sqlxrepos

import (
	"strconv"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation, optionally on a specific named constraint.
func isUniqueViolation(err error, constraint string) bool {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == "23505" {
		return constraint == "" || pqErr.Constraint == constraint
	}
	return false
}
