package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/switchrx/oppscan-app/oppscan/models"
)

// Transactor runs repository units of work inside a single database
// transaction.
type Transactor struct {
	db *sql.DB
}

var _ models.Transactor = &Transactor{}

func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) InTransaction(ctx context.Context, fn func(r models.Repository) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(NewRepositoryTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback also failed: %s", rbErr.Error())
		}
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}
