package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrDuplicate  = errors.New("record already exists")
	ErrReferenced = errors.New("record is referenced by other records")
	ErrConstraint = errors.New("constraint violated")
)

// translate maps driver errors onto the package sentinels, keeping the
// original error in the chain.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return errors.Join(ErrDuplicate, err)
		case sqlite3.ErrConstraintForeignKey:
			return errors.Join(ErrReferenced, err)
		case sqlite3.ErrConstraintTrigger:
			// ON DELETE RESTRICT is enforced as a trigger.
			if strings.Contains(sqliteErr.Error(), "FOREIGN KEY") {
				return errors.Join(ErrReferenced, err)
			}
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
			return errors.Join(ErrConstraint, err)
		}
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return errors.Join(ErrDuplicate, err)
		case "23503":
			return errors.Join(ErrReferenced, err)
		case "23514", "23502":
			return errors.Join(ErrConstraint, err)
		}
	}

	return err
}
