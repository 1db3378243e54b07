package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchrx/oppscan-app/oppscan/models"
)

func TestInTransactionCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM data_quality_issues`).WithArgs(11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	transactor := NewTransactor(db)
	err = transactor.InTransaction(context.Background(), func(r models.Repository) error {
		return r.DeleteIssuesForOpportunity(context.Background(), 11)
	})
	assert.NoError(t, err)
}

func TestInTransactionRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}()

	mock.ExpectBegin()
	mock.ExpectRollback()

	expected := errors.New("unit of work failed")
	transactor := NewTransactor(db)
	err = transactor.InTransaction(context.Background(), func(r models.Repository) error {
		return expected
	})
	assert.ErrorIs(t, err, expected)
}
