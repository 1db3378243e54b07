package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchrx/oppscan-app/oppscan/models"
)

func TestLockTrigger(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}()

	lockQuery := regexp.QuoteMeta(`SELECT pg_try_advisory_lock($1, $2)`)
	unlockQuery := regexp.QuoteMeta(`SELECT pg_advisory_unlock($1, $2)`)

	mock.ExpectQuery(lockQuery).WithArgs(lockClassID, int32(5)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(unlockQuery).WithArgs(lockClassID, int32(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	locker := NewAdvisoryLocker(db)
	release, err := locker.LockTrigger(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, release)
	assert.NoError(t, release())
}

func TestLockTriggerBusy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pg_try_advisory_lock($1, $2)`)).
		WithArgs(lockClassID, int32(5)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	locker := NewAdvisoryLocker(db)
	release, err := locker.LockTrigger(context.Background(), 5)
	assert.Nil(t, release)
	assert.ErrorIs(t, err, models.ErrScanInProgress)
}
