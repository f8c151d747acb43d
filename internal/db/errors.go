package db

import (
	"errors"

	"github.com/uptrace/bun/driver/pgdriver"
)

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation,
// optionally restricted to one constraint or index name.
func IsUniqueViolation(err error, constraint ...string) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) || pgErr.Field('C') != uniqueViolation {
		return false
	}
	if len(constraint) == 0 {
		return true
	}
	name := pgErr.Field('n')
	for _, c := range constraint {
		if c == name {
			return true
		}
	}
	return false
}
