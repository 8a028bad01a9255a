package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is set, the violation must reference that constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) && constraintName == "" {
		return true
	}

	// typed wrappers may hide the driver text, so check every link.
	for link := err; link != nil; link = errors.Unwrap(link) {
		msg := link.Error()
		if constraintName != "" && strings.Contains(msg, constraintName) {
			return true
		}
		// sqlite reports the offending columns instead of the index name.
		if strings.Contains(msg, "UNIQUE constraint failed") {
			return true
		}
		if constraintName == "" && strings.Contains(msg, "duplicate key value") {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
