package sqlxrepos

import "github.com/lib/pq"

// uniqueViolation is the postgres error code for unique constraint violations.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}
