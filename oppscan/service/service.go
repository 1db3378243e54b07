// package service orchestrates trigger scans: matching claims, refreshing
// the coverage cache, and creating or updating opportunities. It holds no
// persistence logic of its own; everything goes through models.Repository.
package service

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/switchrx/oppscan-app/log"
	"github.com/switchrx/oppscan-app/oppscan/constants"
	"github.com/switchrx/oppscan-app/oppscan/coverage"
	"github.com/switchrx/oppscan-app/oppscan/matcher"
	"github.com/switchrx/oppscan-app/oppscan/models"
)

// Ensure service satisfies the interface
var _ Service = &service{}

// Service contains the engine's operational surface. HTTP, scheduling and
// reporting are collaborator concerns.
type Service interface {
	// ScanTrigger runs a single-trigger pass: match claims, refresh the
	// trigger's coverage cache, then create or refresh opportunities.
	ScanTrigger(ctx context.Context, triggerID uint) (*ScanResult, error)

	// ScanAll fans out over all enabled triggers, then runs one global
	// deduplication and quality-gate pass. One trigger's failure never
	// aborts the remaining catalog.
	ScanAll(ctx context.Context) ([]*ScanResult, error)

	// Deduplicate collapses live opportunities sharing a
	// (pharmacy, patient, recommended drug) key down to one record.
	Deduplicate(ctx context.Context) (*DedupResult, error)

	// RunQualityGate reconciles DataQualityIssues for trigger-attributed
	// opportunities with missing or unknown attribution.
	RunQualityGate(ctx context.Context) (*QualityResult, error)
}

// ScanResult reports one trigger's pass. A zero MatchedClaims with a nil
// Err means the trigger correctly found nothing, which operators must be
// able to tell apart from a misconfigured trigger (a non-nil Err).
type ScanResult struct {
	TriggerID   uint
	TriggerName string

	MatchedClaims   int
	ExcludedClaims  int
	CoverageRecords int

	OpportunitiesCreated   int
	OpportunitiesRefreshed int
	OpportunitiesSkipped   int

	Err error
}

// DedupResult reports a global deduplication pass.
type DedupResult struct {
	GroupsProcessed int
	Removed         int

	// Conflicts lists actioned duplicates that require a recorded manual
	// merge; the engine never silently removes staff-actioned work.
	Conflicts []DedupConflict
}

type DedupConflict struct {
	SurvivorID    uint
	OpportunityID uint
	Status        string
}

// QualityResult reports a quality-gate reconciliation pass.
type QualityResult struct {
	OpportunitiesChecked int
	IssuesCreated        int
	IssuesResolved       int
}

func NewService(r models.Repository, tx models.Transactor, locker models.TriggerLocker, cfg *Config) Service {
	return &service{
		repository: r,
		transactor: tx,
		locker:     locker,
		logger:     log.Engine,
		lookback:   time.Duration(cfg.LookbackDays) * 24 * time.Hour,

		minDaysSupply:  cfg.MinDaysSupply,
		supplyFloorPct: cfg.SupplyFloorPct,

		now: time.Now,
	}
}

type service struct {
	repository models.Repository
	transactor models.Transactor
	locker     models.TriggerLocker

	logger logrus.FieldLogger

	lookback       time.Duration
	minDaysSupply  int
	supplyFloorPct float64

	// Variable substitution to support testing.
	now func() time.Time
}

func (s *service) ScanTrigger(ctx context.Context, triggerID uint) (*ScanResult, error) {
	release, err := s.locker.LockTrigger(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := release(); releaseErr != nil {
			s.logger.Errorf("Failed to release scan lock for trigger %d: %s", triggerID, releaseErr.Error())
		}
	}()

	trigger, err := s.repository.GetTriggerByID(ctx, triggerID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to retrieve trigger %d", triggerID)
	}
	if !trigger.Enabled {
		return nil, fmt.Errorf("trigger %d (%s) is disabled", trigger.ID, trigger.Name)
	}

	// Configuration errors are rejected up front with a descriptive reason.
	// A silently-skipped trigger produces zero opportunities with no signal
	// that anything is wrong.
	if err := matcher.ValidateTrigger(trigger); err != nil {
		return nil, err
	}

	return s.scan(ctx, trigger)
}

func (s *service) scan(ctx context.Context, trigger *models.Trigger) (*ScanResult, error) {
	result := &ScanResult{TriggerID: trigger.ID, TriggerName: trigger.Name}

	claims, err := s.repository.GetClaimsSince(ctx, s.now().Add(-s.lookback))
	if err != nil {
		return nil, errors.Wrap(err, "failed to retrieve claims")
	}
	s.fillInsuranceFromPatients(ctx, claims)

	var matched []*models.Claim
	for _, claim := range claims {
		mr := matcher.Match(claim.DrugName, trigger)
		switch {
		case mr.Matched && mr.Excluded:
			result.ExcludedClaims++
		case mr.Matched:
			matched = append(matched, claim)
		}
	}
	result.MatchedClaims = len(matched)
	if len(matched) == 0 {
		// Not an error: a correctly configured trigger may find nothing.
		s.logger.Infof("Trigger %d (%s): 0 matching claims", trigger.ID, trigger.Name)
	}

	index, count, err := s.refreshCoverage(ctx, trigger, claims)
	if err != nil {
		return nil, err
	}
	result.CoverageRecords = count

	// Coverage must be complete before any opportunity consults it.
	if err := s.generateOpportunities(ctx, trigger, matched, index, result); err != nil {
		return nil, err
	}

	return result, nil
}

// fillInsuranceFromPatients backfills BIN/group on claims that arrived
// without their own, using each patient's primary insurance identifiers.
func (s *service) fillInsuranceFromPatients(ctx context.Context, claims []*models.Claim) {
	patients := make(map[uint]*models.Patient)

	for _, claim := range claims {
		if claim.BIN != "" {
			continue
		}
		patient, ok := patients[claim.PatientID]
		if !ok {
			var err error
			patient, err = s.repository.GetPatientByID(ctx, claim.PatientID)
			if err != nil {
				s.logger.Warnf("No insurance fallback for claim %d, patient %d: %s",
					claim.ID, claim.PatientID, err.Error())
				patients[claim.PatientID] = nil
				continue
			}
			patients[claim.PatientID] = patient
		}
		if patient == nil {
			continue
		}
		claim.BIN = patient.PrimaryBIN
		if claim.GroupID == nil {
			claim.GroupID = patient.PrimaryGroup
		}
	}
}

// refreshCoverage recomputes the trigger's CoverageRecords from recent
// claims and returns the index the opportunity generator consults. Records
// for payer cells with no claims this pass survive in the index so a stale
// cache still informs confidence.
func (s *service) refreshCoverage(ctx context.Context, trigger *models.Trigger,
	claims []*models.Claim) (*coverage.Index, int, error) {

	existing, err := s.repository.GetCoverageRecordsByTrigger(ctx, trigger.ID)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to retrieve coverage records for trigger %d", trigger.ID)
	}

	// Administrative excluded overrides survive recomputation.
	overrides := make(map[string]bool)
	for _, record := range existing {
		if record.Status == constants.CoverageExcluded {
			overrides[coverage.Key(record.BIN, record.GroupID)] = true
		}
	}

	floor := coverage.MinDaysSupplyFloor(trigger, s.supplyFloorPct, s.minDaysSupply)
	records := coverage.Resolve(trigger, claims, overrides, floor, s.now())

	merged := make(map[string]*models.CoverageRecord, len(existing)+len(records))
	for _, record := range existing {
		merged[coverage.Key(record.BIN, record.GroupID)] = record
	}
	for _, record := range records {
		if err := s.repository.UpsertCoverageRecord(ctx, *record); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to upsert coverage record for trigger %d, BIN %s",
				trigger.ID, record.BIN)
		}
		merged[coverage.Key(record.BIN, record.GroupID)] = record
	}

	all := make([]*models.CoverageRecord, 0, len(merged))
	for _, record := range merged {
		all = append(all, record)
	}

	return coverage.NewIndex(all), len(records), nil
}

func (s *service) generateOpportunities(ctx context.Context, trigger *models.Trigger,
	matched []*models.Claim, index *coverage.Index, result *ScanResult) error {

	drugKey := matcher.Normalize(trigger.RecommendedDrugName)
	seen := make(map[string]bool)

	for _, claim := range matched {
		key := fmt.Sprintf("%d|%d|%s", claim.PharmacyID, claim.PatientID, drugKey)
		if seen[key] {
			continue
		}
		seen[key] = true

		existing, err := s.repository.GetLiveOpportunityByKey(ctx, claim.PharmacyID, claim.PatientID, drugKey)
		if err != nil && !goerrors.Is(err, models.ErrOpportunityNotFound) {
			return errors.Wrap(err, "failed to look up existing opportunity")
		}

		// Staff-actioned work is never overwritten.
		if existing != nil && models.IsActioned(existing.Status) {
			result.OpportunitiesSkipped++
			continue
		}

		monthly := trigger.DefaultProfit
		if exact := index.Exact(claim.BIN, claim.GroupID); exact != nil &&
			exact.Status == constants.CoverageVerified && exact.MedianProfit != nil {
			monthly = *exact.MedianProfit
		}
		annual := monthly * float64(trigger.ExpectedAnnualFills())
		confidence := index.Confidence(claim.BIN, claim.GroupID)

		if existing != nil {
			err = s.transactor.InTransaction(ctx, func(r models.Repository) error {
				if err := r.UpdateOpportunity(ctx, existing.ID, map[string]interface{}{
					"current_drug_name": claim.DrugName,
					"prescriber_name":   claim.PrescriberName,
					"monthly_gain":      monthly,
					"annual_gain":       annual,
					"confidence":        confidence,
				}); err != nil {
					return err
				}
				refreshed := *existing
				refreshed.CurrentDrugName = claim.DrugName
				refreshed.PrescriberName = claim.PrescriberName
				return s.reconcileIssues(ctx, r, &refreshed)
			})
			if err != nil {
				return errors.Wrapf(err, "failed to refresh opportunity %d", existing.ID)
			}
			result.OpportunitiesRefreshed++
			continue
		}

		triggerID := trigger.ID
		opp := &models.Opportunity{
			UUID:       uuid.NewRandom(),
			PharmacyID: claim.PharmacyID,
			PatientID:  claim.PatientID,
			TriggerID:  &triggerID,

			CurrentDrugName:     claim.DrugName,
			RecommendedDrugName: trigger.RecommendedDrugName,
			RecommendedDrugNDC:  trigger.RecommendedDrugNDC,
			RecommendedDrugKey:  drugKey,

			MonthlyGain: monthly,
			AnnualGain:  annual,

			Confidence: confidence,
			Status:     constants.StatusNotSubmitted,

			PrescriberName: claim.PrescriberName,
		}

		err = s.transactor.InTransaction(ctx, func(r models.Repository) error {
			id, err := r.CreateOpportunity(ctx, opp)
			if err != nil {
				return err
			}
			opp.ID = id
			return s.reconcileIssues(ctx, r, opp)
		})
		if err != nil {
			return errors.Wrap(err, "failed to create opportunity")
		}
		result.OpportunitiesCreated++
	}

	return nil
}

func (s *service) ScanAll(ctx context.Context) ([]*ScanResult, error) {
	triggers, err := s.repository.GetEnabledTriggers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to retrieve enabled triggers")
	}

	results := make([]*ScanResult, 0, len(triggers))
	for _, trigger := range triggers {
		result, err := s.ScanTrigger(ctx, trigger.ID)
		if err != nil {
			s.logger.Errorf("Trigger %d (%s) scan failed: %s", trigger.ID, trigger.Name, err.Error())
			results = append(results, &ScanResult{TriggerID: trigger.ID, TriggerName: trigger.Name, Err: err})
			continue
		}
		results = append(results, result)
	}

	if _, err := s.Deduplicate(ctx); err != nil {
		return results, err
	}
	if _, err := s.RunQualityGate(ctx); err != nil {
		return results, err
	}

	return results, nil
}
