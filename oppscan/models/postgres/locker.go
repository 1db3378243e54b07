package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/switchrx/oppscan-app/oppscan/models"
)

// lockClassID namespaces this application's advisory locks so they cannot
// collide with other tooling sharing the database.
const lockClassID = 0x4F505053 // "OPPS"

// AdvisoryLocker implements per-trigger scan mutual exclusion with postgres
// session advisory locks. Each lock pins a dedicated connection; the lock
// lives exactly as long as that session.
type AdvisoryLocker struct {
	db *sql.DB
}

var _ models.TriggerLocker = &AdvisoryLocker{}

func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

func (l *AdvisoryLocker) LockTrigger(ctx context.Context, triggerID uint) (func() error, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire connection for trigger lock")
	}

	var acquired bool
	row := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1, $2)", lockClassID, int32(triggerID))
	if err := row.Scan(&acquired); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to request lock for trigger %d", triggerID)
	}
	if !acquired {
		conn.Close()
		return nil, models.ErrScanInProgress
	}

	release := func() error {
		// Closing the connection would release the lock anyway; the explicit
		// unlock keeps the pooled session clean.
		_, unlockErr := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1, $2)", lockClassID, int32(triggerID))
		closeErr := conn.Close()
		if unlockErr != nil {
			return errors.Wrapf(unlockErr, "failed to release lock for trigger %d", triggerID)
		}
		return closeErr
	}

	return release, nil
}
