// package models contains the engine's entities and the narrow persistence
// interface the rest of the engine works against. The SQL/query shape is an
// implementation detail of the postgres package.
package models

import (
	"context"
	"errors"
	"time"
)

type Repository interface {
	triggerRepository
	claimRepository
	patientRepository
	coverageRepository
	opportunityRepository
	dataQualityRepository
}

type triggerRepository interface {
	GetEnabledTriggers(ctx context.Context) ([]*Trigger, error)

	GetTriggerByID(ctx context.Context, triggerID uint) (*Trigger, error)
}

type claimRepository interface {
	// GetClaimsSince returns claims dispensed at or after the lower bound.
	// Claims are read-only to the engine.
	GetClaimsSince(ctx context.Context, lowerBound time.Time) ([]*Claim, error)
}

type patientRepository interface {
	GetPatientByID(ctx context.Context, patientID uint) (*Patient, error)
}

type coverageRepository interface {
	GetCoverageRecordsByTrigger(ctx context.Context, triggerID uint) ([]*CoverageRecord, error)

	// UpsertCoverageRecord writes a resolver result, keyed on
	// (trigger, BIN, normalized group). An administrative excluded override
	// already present on the row survives the upsert.
	UpsertCoverageRecord(ctx context.Context, record CoverageRecord) error

	// MarkCoverageExcluded is the administrative override: it forces the
	// (trigger, BIN, group) record to excluded independent of claim evidence.
	MarkCoverageExcluded(ctx context.Context, triggerID uint, bin string, group *string) error
}

type opportunityRepository interface {
	// GetLiveOpportunityByKey returns the live opportunity for the
	// deduplication key, if any. Terminal-negative records are not live and
	// are never returned.
	GetLiveOpportunityByKey(ctx context.Context, pharmacyID, patientID uint, recommendedDrugKey string) (*Opportunity, error)

	CreateOpportunity(ctx context.Context, opp *Opportunity) (uint, error)

	UpdateOpportunity(ctx context.Context, opportunityID uint, fieldsAndValues map[string]interface{}) error

	// GetLiveOpportunities returns every non-terminal-negative opportunity,
	// for the global deduplication pass.
	GetLiveOpportunities(ctx context.Context) ([]*Opportunity, error)

	// GetTriggeredOpportunities returns opportunities with trigger
	// attribution; legacy/untriggered records are excluded so the quality
	// gate never floods issues for data the engine did not generate.
	GetTriggeredOpportunities(ctx context.Context) ([]*Opportunity, error)

	// DeleteOpportunity removes a Not Submitted opportunity. Rows in any
	// other status are refused at the SQL level.
	DeleteOpportunity(ctx context.Context, opportunityID uint) error
}

type dataQualityRepository interface {
	CreateDataQualityIssue(ctx context.Context, issue DataQualityIssue) (uint, error)

	GetPendingIssues(ctx context.Context, opportunityID uint) ([]*DataQualityIssue, error)

	ResolveDataQualityIssues(ctx context.Context, opportunityID uint, issueType string) error

	DeleteIssuesForOpportunity(ctx context.Context, opportunityID uint) error
}

// Transactor runs a unit of work against a repository bound to a single
// database transaction. The whole unit commits or rolls back together.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(r Repository) error) error
}

// TriggerLocker provides per-trigger scan mutual exclusion. The returned
// release function must be called when the scan finishes.
type TriggerLocker interface {
	LockTrigger(ctx context.Context, triggerID uint) (release func() error, err error)
}

var (
	// ErrScanInProgress indicates another scanner holds the trigger's lock.
	ErrScanInProgress = errors.New("a scan for this trigger is already in progress")

	ErrOpportunityNotFound = errors.New("no opportunity found for given id")

	// ErrOpportunityActioned indicates a delete was refused because staff
	// have acted on the record.
	ErrOpportunityActioned = errors.New("opportunity has an actioned status and cannot be removed")
)
