package queueing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bgentry/que-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchrx/oppscan-app/oppscan/models"
	"github.com/switchrx/oppscan-app/oppscan/service"
)

type stubService struct {
	result *service.ScanResult
	err    error

	scanned []uint
}

func (s *stubService) ScanTrigger(ctx context.Context, triggerID uint) (*service.ScanResult, error) {
	s.scanned = append(s.scanned, triggerID)
	return s.result, s.err
}

func (s *stubService) ScanAll(ctx context.Context) ([]*service.ScanResult, error) {
	return []*service.ScanResult{s.result}, s.err
}

func (s *stubService) Deduplicate(ctx context.Context) (*service.DedupResult, error) {
	return &service.DedupResult{}, s.err
}

func (s *stubService) RunQualityGate(ctx context.Context) (*service.QualityResult, error) {
	return &service.QualityResult{}, s.err
}

func testQueue(svc service.Service) *queue {
	return &queue{
		svc:            svc,
		logger:         logrus.New(),
		maxBusyRetries: 3,
	}
}

func scanJob(t *testing.T, triggerID uint, errorCount int32) *que.Job {
	args, err := json.Marshal(ScanJobArgs{TriggerID: triggerID})
	require.NoError(t, err)
	return &que.Job{Type: QUE_SCAN_TRIGGER, Args: args, ErrorCount: errorCount}
}

func TestProcessScanJob(t *testing.T) {
	svc := &stubService{result: &service.ScanResult{TriggerID: 5, MatchedClaims: 2}}
	q := testQueue(svc)

	assert.NoError(t, q.processScanJob(scanJob(t, 5, 0)))
	assert.Equal(t, []uint{5}, svc.scanned)
}

func TestProcessScanJobBadArgs(t *testing.T) {
	svc := &stubService{}
	q := testQueue(svc)

	// Undecodable args are acked; retrying cannot fix them.
	err := q.processScanJob(&que.Job{Type: QUE_SCAN_TRIGGER, Args: []byte("{not json")})
	assert.NoError(t, err)
	assert.Empty(t, svc.scanned)
}

func TestProcessScanJobBusyRetries(t *testing.T) {
	svc := &stubService{err: models.ErrScanInProgress}
	q := testQueue(svc)

	// Below the retry ceiling the job is returned to the queue.
	assert.Error(t, q.processScanJob(scanJob(t, 5, 1)))

	// At the ceiling the job is acked and dropped.
	assert.NoError(t, q.processScanJob(scanJob(t, 5, 3)))
}
