package models

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockRepository is a testify mock of Repository for use in service tests.
type MockRepository struct {
	mock.Mock
}

var _ Repository = &MockRepository{}

func (m *MockRepository) GetEnabledTriggers(ctx context.Context) ([]*Trigger, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Trigger), args.Error(1)
}

func (m *MockRepository) GetTriggerByID(ctx context.Context, triggerID uint) (*Trigger, error) {
	args := m.Called(ctx, triggerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Trigger), args.Error(1)
}

func (m *MockRepository) GetClaimsSince(ctx context.Context, lowerBound time.Time) ([]*Claim, error) {
	args := m.Called(ctx, lowerBound)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Claim), args.Error(1)
}

func (m *MockRepository) GetPatientByID(ctx context.Context, patientID uint) (*Patient, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Patient), args.Error(1)
}

func (m *MockRepository) GetCoverageRecordsByTrigger(ctx context.Context, triggerID uint) ([]*CoverageRecord, error) {
	args := m.Called(ctx, triggerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*CoverageRecord), args.Error(1)
}

func (m *MockRepository) UpsertCoverageRecord(ctx context.Context, record CoverageRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRepository) MarkCoverageExcluded(ctx context.Context, triggerID uint, bin string, group *string) error {
	args := m.Called(ctx, triggerID, bin, group)
	return args.Error(0)
}

func (m *MockRepository) GetLiveOpportunityByKey(ctx context.Context, pharmacyID, patientID uint, recommendedDrugKey string) (*Opportunity, error) {
	args := m.Called(ctx, pharmacyID, patientID, recommendedDrugKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Opportunity), args.Error(1)
}

func (m *MockRepository) CreateOpportunity(ctx context.Context, opp *Opportunity) (uint, error) {
	args := m.Called(ctx, opp)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) UpdateOpportunity(ctx context.Context, opportunityID uint, fieldsAndValues map[string]interface{}) error {
	args := m.Called(ctx, opportunityID, fieldsAndValues)
	return args.Error(0)
}

func (m *MockRepository) GetLiveOpportunities(ctx context.Context) ([]*Opportunity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Opportunity), args.Error(1)
}

func (m *MockRepository) GetTriggeredOpportunities(ctx context.Context) ([]*Opportunity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Opportunity), args.Error(1)
}

func (m *MockRepository) DeleteOpportunity(ctx context.Context, opportunityID uint) error {
	args := m.Called(ctx, opportunityID)
	return args.Error(0)
}

func (m *MockRepository) CreateDataQualityIssue(ctx context.Context, issue DataQualityIssue) (uint, error) {
	args := m.Called(ctx, issue)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetPendingIssues(ctx context.Context, opportunityID uint) ([]*DataQualityIssue, error) {
	args := m.Called(ctx, opportunityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*DataQualityIssue), args.Error(1)
}

func (m *MockRepository) ResolveDataQualityIssues(ctx context.Context, opportunityID uint, issueType string) error {
	args := m.Called(ctx, opportunityID, issueType)
	return args.Error(0)
}

func (m *MockRepository) DeleteIssuesForOpportunity(ctx context.Context, opportunityID uint) error {
	args := m.Called(ctx, opportunityID)
	return args.Error(0)
}

// MockTransactor satisfies Transactor by running the unit of work against the
// supplied repository with no real transaction underneath.
type MockTransactor struct {
	R Repository
}

var _ Transactor = &MockTransactor{}

func (m *MockTransactor) InTransaction(ctx context.Context, fn func(r Repository) error) error {
	return fn(m.R)
}

// MockTriggerLocker satisfies TriggerLocker. When Busy is set, every lock
// attempt reports ErrScanInProgress.
type MockTriggerLocker struct {
	Busy bool

	Locked []uint
}

var _ TriggerLocker = &MockTriggerLocker{}

func (m *MockTriggerLocker) LockTrigger(ctx context.Context, triggerID uint) (func() error, error) {
	if m.Busy {
		return nil, ErrScanInProgress
	}
	m.Locked = append(m.Locked, triggerID)
	return func() error { return nil }, nil
}
