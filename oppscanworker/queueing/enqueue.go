package queueing

import (
	"encoding/json"

	"github.com/bgentry/que-go"
	"github.com/jackc/pgx"
	"github.com/pkg/errors"
)

// Enqueuer submits trigger scan jobs for the worker pool.
type Enqueuer struct {
	pool *pgx.ConnPool
	qc   *que.Client
}

func NewEnqueuer(queueDatabaseURL string) (*Enqueuer, error) {
	cfg, err := pgx.ParseURI(queueDatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid queue database URL")
	}

	pool, err := pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:   cfg,
		AfterConnect: que.PrepareStatements,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create queue connection pool")
	}

	return &Enqueuer{pool: pool, qc: que.NewClient(pool)}, nil
}

func (e *Enqueuer) Close() {
	e.pool.Close()
}

// EnqueueScanJobs submits one scan job per trigger.
func (e *Enqueuer) EnqueueScanJobs(triggerIDs []uint) error {
	for _, triggerID := range triggerIDs {
		args, err := json.Marshal(ScanJobArgs{TriggerID: triggerID})
		if err != nil {
			return err
		}

		if err := e.qc.Enqueue(&que.Job{Type: QUE_SCAN_TRIGGER, Args: args}); err != nil {
			return errors.Wrapf(err, "failed to enqueue scan for trigger %d", triggerID)
		}
	}

	return nil
}
