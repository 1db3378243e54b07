// package queueing distributes trigger scans over a que-go worker pool so a
// large trigger catalog can be worked in parallel across processes. One job
// equals one trigger scan; the per-trigger advisory lock keeps concurrent
// workers from colliding on the same trigger.
package queueing

import (
	"context"
	"database/sql"
	"encoding/json"
	goerrors "errors"
	"time"

	"github.com/bgentry/que-go"
	"github.com/jackc/pgx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/switchrx/oppscan-app/conf"
	"github.com/switchrx/oppscan-app/log"
	"github.com/switchrx/oppscan-app/oppscan/database"
	"github.com/switchrx/oppscan-app/oppscan/metrics"
	"github.com/switchrx/oppscan-app/oppscan/models"
	"github.com/switchrx/oppscan-app/oppscan/models/postgres"
	"github.com/switchrx/oppscan-app/oppscan/service"
	"github.com/switchrx/oppscan-app/oppscan/utils"
)

const (
	QUE_SCAN_TRIGGER = "ScanTrigger"
)

// ScanJobArgs is the payload for one queued trigger scan.
type ScanJobArgs struct {
	TriggerID uint `json:"trigger_id"`
}

// queue retrieves scan jobs with the que client and delegates them to the
// underlying service.
type queue struct {
	quePool           *que.WorkerPool
	pool              *pgx.ConnPool
	healthCheckCancel context.CancelFunc

	svc    service.Service
	logger logrus.FieldLogger

	maxBusyRetries int32
	cloudWatchEnv  string
}

// StartQue creates a que-go client and begins listening for scan jobs. It
// returns immediately since all of the associated workers are started in
// separate goroutines.
func StartQue(queueDatabaseURL string, numWorkers int) *queue {
	db := database.GetDbConnection()
	cfg, err := service.LoadConfig()
	if err != nil {
		logrus.Fatal(err)
	}

	q := &queue{
		svc: service.NewService(postgres.NewRepository(db),
			postgres.NewTransactor(db), postgres.NewAdvisoryLocker(db), cfg),
		logger:         log.Worker,
		maxBusyRetries: int32(utils.GetEnvInt("OPPSCAN_WORKER_MAX_BUSY_RETRIES", 3)),
		cloudWatchEnv:  conf.GetEnv("DEPLOYMENT_TARGET"),
	}

	pgxcfg, err := pgx.ParseURI(queueDatabaseURL)
	if err != nil {
		logrus.Fatal(err)
	}

	q.pool, err = pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:   pgxcfg,
		AfterConnect: que.PrepareStatements,
	})
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.healthCheckCancel = cancel
	database.StartHealthCheck(ctx, db, 10*time.Second)

	qc := que.NewClient(q.pool)
	wm := que.WorkMap{
		QUE_SCAN_TRIGGER: q.processScanJob,
	}

	q.quePool = que.NewWorkerPool(qc, wm, numWorkers)
	q.quePool.Start()

	return q
}

// StopQue cleans up any resources created
func (q *queue) StopQue() {
	q.healthCheckCancel()
	q.quePool.Shutdown()
	q.pool.Close()
}

func (q *queue) processScanJob(job *que.Job) error {
	ctx := context.Background()
	defer q.updateQueueCountMetric()

	var jobArgs ScanJobArgs
	if err := json.Unmarshal(job.Args, &jobArgs); err != nil {
		// ACK the job because retrying it won't help us be able to deserialize the data
		q.logger.Errorf("Removing scan job %d with undecodable args: %s", job.ID, err.Error())
		return nil
	}

	result, err := q.svc.ScanTrigger(ctx, jobArgs.TriggerID)
	if goerrors.Is(err, models.ErrScanInProgress) {
		if job.ErrorCount >= q.maxBusyRetries {
			q.logger.Warnf("Trigger %d still locked after %d attempts. Removing job from queue.",
				jobArgs.TriggerID, job.ErrorCount)
			return nil
		}
		q.logger.Infof("Trigger %d locked by another scanner. Will retry.", jobArgs.TriggerID)
		return errors.Wrapf(err, "trigger %d is busy", jobArgs.TriggerID)
	} else if err != nil {
		return err
	}

	q.logger.WithFields(logrus.Fields{
		"trigger_id":     result.TriggerID,
		"matched_claims": result.MatchedClaims,
		"created":        result.OpportunitiesCreated,
		"refreshed":      result.OpportunitiesRefreshed,
	}).Info("Scan job complete")

	if q.cloudWatchEnv != "" {
		sampler, err := metrics.NewSampler("OPPSCAN", "Count")
		if err != nil {
			q.logger.Warn("Failed to create metric sampler")
		} else if err := sampler.PutScanSamples(result); err != nil {
			q.logger.Error(err)
		}
	}

	return nil
}

func (q *queue) updateQueueCountMetric() {
	if q.cloudWatchEnv == "" {
		return
	}

	sampler, err := metrics.NewSampler("OPPSCAN", "Count")
	if err != nil {
		q.logger.Warn("Failed to create metric sampler")
		return
	}

	if err := sampler.PutSample("ScanQueueCount", getQueueJobCount(q.logger), []metrics.Dimension{
		{Name: "Environment", Value: q.cloudWatchEnv},
	}); err != nil {
		q.logger.Error(err)
	}
}

func getQueueJobCount(logger logrus.FieldLogger) float64 {
	databaseURL := conf.GetEnv("QUEUE_DATABASE_URL")
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		logger.Error(err)
		return 0
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(`select count(*) from que_jobs;`).Scan(&count); err != nil {
		logger.Error(err)
	}

	return float64(count)
}
