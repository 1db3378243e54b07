package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
	"github.com/pborman/uuid"

	"github.com/switchrx/oppscan-app/oppscan/constants"
	"github.com/switchrx/oppscan-app/oppscan/models"
)

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type executable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	sqlFlavor = sqlbuilder.PostgreSQL
)

// Ensure Repository satisfies the interface
var _ models.Repository = &Repository{}

type Repository struct {
	queryable
	executable
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db, db}
}

func NewRepositoryTx(tx *sql.Tx) *Repository {
	return &Repository{tx, tx}
}

var triggerColumns = []string{"id", "name", "category", "keywords", "exclusion_phrases",
	"match_mode", "recommended_drug_name", "recommended_drug_ndc", "expected_quantity",
	"expected_days_supply", "default_profit", "annual_fills", "enabled"}

func (r *Repository) GetEnabledTriggers(ctx context.Context) ([]*models.Trigger, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(triggerColumns...)
	sb.From("triggers").Where(sb.Equal("enabled", true))
	sb.OrderBy("id")

	query, args := sb.Build()
	return r.getTriggers(ctx, query, args...)
}

func (r *Repository) GetTriggerByID(ctx context.Context, triggerID uint) (*models.Trigger, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(triggerColumns...)
	sb.From("triggers").Where(sb.Equal("id", triggerID))

	query, args := sb.Build()
	triggers, err := r.getTriggers(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(triggers) == 0 {
		return nil, fmt.Errorf("no trigger found for id %d", triggerID)
	}

	return triggers[0], nil
}

func (r *Repository) getTriggers(ctx context.Context, query string, args ...interface{}) ([]*models.Trigger, error) {
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []*models.Trigger
	for rows.Next() {
		var t models.Trigger
		if err := rows.Scan(&t.ID, &t.Name, &t.Category, pq.Array(&t.Keywords), pq.Array(&t.ExclusionPhrases),
			&t.MatchMode, &t.RecommendedDrugName, &t.RecommendedDrugNDC, &t.ExpectedQuantity,
			&t.ExpectedDaysSupply, &t.DefaultProfit, &t.AnnualFills, &t.Enabled); err != nil {
			return nil, err
		}
		triggers = append(triggers, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return triggers, nil
}

func (r *Repository) GetClaimsSince(ctx context.Context, lowerBound time.Time) ([]*models.Claim, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "pharmacy_id", "patient_id", "drug_name", "ndc", "quantity", "days_supply",
		"bin", "group_id", "prescriber_name", "payload", "dispensed_at")
	sb.From("claims").Where(sb.GreaterEqualThan("dispensed_at", lowerBound))
	sb.OrderBy("dispensed_at").Desc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*models.Claim
	for rows.Next() {
		var (
			c          models.Claim
			daysSupply sql.NullInt64
			bin, group sql.NullString
			payload    []byte
		)
		if err := rows.Scan(&c.ID, &c.PharmacyID, &c.PatientID, &c.DrugName, &c.NDC, &c.Quantity,
			&daysSupply, &bin, &group, &c.PrescriberName, &payload, &c.DispensedAt); err != nil {
			return nil, err
		}
		if daysSupply.Valid {
			days := int(daysSupply.Int64)
			c.DaysSupply = &days
		}
		c.BIN = bin.String
		if group.Valid {
			c.GroupID = &group.String
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &c.Payload); err != nil {
				return nil, fmt.Errorf("claim %d has malformed payload: %w", c.ID, err)
			}
		}
		claims = append(claims, &c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return claims, nil
}

func (r *Repository) GetPatientByID(ctx context.Context, patientID uint) (*models.Patient, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "pharmacy_id", "primary_bin", "primary_group")
	sb.From("patients").Where(sb.Equal("id", patientID))

	patient := models.Patient{}
	var bin, group sql.NullString

	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&patient.ID, &patient.PharmacyID, &bin, &group); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no patient found for id %d", patientID)
		}
		return nil, err
	}
	patient.PrimaryBIN = bin.String
	if group.Valid {
		patient.PrimaryGroup = &group.String
	}

	return &patient, nil
}

func (r *Repository) GetCoverageRecordsByTrigger(ctx context.Context, triggerID uint) ([]*models.CoverageRecord, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "trigger_id", "bin", "group_id", "status", "claim_count", "median_profit",
		"best_drug_name", "best_drug_ndc", "updated_at")
	sb.From("coverage_records").Where(sb.Equal("trigger_id", triggerID))
	sb.OrderBy("bin", "group_id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.CoverageRecord
	for rows.Next() {
		var (
			record models.CoverageRecord
			group  sql.NullString
			median sql.NullFloat64
		)
		if err := rows.Scan(&record.ID, &record.TriggerID, &record.BIN, &group, &record.Status,
			&record.ClaimCount, &median, &record.BestDrugName, &record.BestDrugNDC, &record.UpdatedAt); err != nil {
			return nil, err
		}
		if group.Valid {
			record.GroupID = &group.String
		}
		if median.Valid {
			record.MedianProfit = &median.Float64
		}
		records = append(records, &record)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func (r *Repository) UpsertCoverageRecord(ctx context.Context, record models.CoverageRecord) error {
	var median sql.NullFloat64
	if record.MedianProfit != nil {
		median = sql.NullFloat64{Float64: *record.MedianProfit, Valid: true}
	}

	// The conflict target matches the expression index on
	// (trigger_id, bin, COALESCE(group_id, '')); a NULL group would otherwise
	// never conflict with itself. An administratively excluded row keeps its
	// status through recomputation.
	query, args := sqlbuilder.Buildf(`INSERT INTO coverage_records
		(trigger_id, bin, group_id, status, claim_count, median_profit,
			best_drug_name, best_drug_ndc, updated_at) VALUES
		(%s, %s, %s, %s, %s, %s, %s, %s, %s)
		ON CONFLICT (trigger_id, bin, COALESCE(group_id, '')) DO UPDATE SET
			claim_count = EXCLUDED.claim_count,
			median_profit = EXCLUDED.median_profit,
			best_drug_name = EXCLUDED.best_drug_name,
			best_drug_ndc = EXCLUDED.best_drug_ndc,
			updated_at = EXCLUDED.updated_at,
			status = CASE WHEN coverage_records.status = %s
				THEN coverage_records.status ELSE EXCLUDED.status END`,
		record.TriggerID, record.BIN, models.NormalizeGroup(record.GroupID), record.Status,
		record.ClaimCount, median, record.BestDrugName, record.BestDrugNDC, record.UpdatedAt,
		constants.CoverageExcluded).
		BuildWithFlavor(sqlFlavor)

	_, err := r.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) MarkCoverageExcluded(ctx context.Context, triggerID uint, bin string, group *string) error {
	query, args := sqlbuilder.Buildf(`INSERT INTO coverage_records
		(trigger_id, bin, group_id, status, claim_count, best_drug_name, best_drug_ndc, updated_at)
		VALUES (%s, %s, %s, %s, 0, '', '', NOW())
		ON CONFLICT (trigger_id, bin, COALESCE(group_id, '')) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW()`,
		triggerID, bin, models.NormalizeGroup(group), constants.CoverageExcluded).
		BuildWithFlavor(sqlFlavor)

	_, err := r.ExecContext(ctx, query, args...)
	return err
}

var opportunityColumns = []string{"id", "uuid", "pharmacy_id", "patient_id", "trigger_id",
	"current_drug_name", "recommended_drug_name", "recommended_drug_ndc", "recommended_drug_key",
	"monthly_gain", "annual_gain", "confidence", "status", "prescriber_name", "notes",
	"created_at", "updated_at"}

func (r *Repository) GetLiveOpportunityByKey(ctx context.Context, pharmacyID, patientID uint, recommendedDrugKey string) (*models.Opportunity, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(opportunityColumns...)
	sb.From("opportunities").Where(
		sb.Equal("pharmacy_id", pharmacyID),
		sb.Equal("patient_id", patientID),
		sb.Equal("recommended_drug_key", recommendedDrugKey),
		sb.NotIn("status", constants.StatusDenied, constants.StatusDeclined),
	)
	sb.OrderBy("created_at").Limit(1)

	query, args := sb.Build()
	opportunities, err := r.getOpportunities(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(opportunities) == 0 {
		return nil, models.ErrOpportunityNotFound
	}

	return opportunities[0], nil
}

func (r *Repository) GetLiveOpportunities(ctx context.Context) ([]*models.Opportunity, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(opportunityColumns...)
	sb.From("opportunities").Where(
		sb.NotIn("status", constants.StatusDenied, constants.StatusDeclined),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	return r.getOpportunities(ctx, query, args...)
}

func (r *Repository) GetTriggeredOpportunities(ctx context.Context) ([]*models.Opportunity, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(opportunityColumns...)
	sb.From("opportunities").Where(
		sb.IsNotNull("trigger_id"),
		sb.NotIn("status", constants.StatusDenied, constants.StatusDeclined),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	return r.getOpportunities(ctx, query, args...)
}

func (r *Repository) getOpportunities(ctx context.Context, query string, args ...interface{}) ([]*models.Opportunity, error) {
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opportunities []*models.Opportunity
	for rows.Next() {
		var (
			o         models.Opportunity
			oppUUID   string
			triggerID sql.NullInt64
		)
		if err := rows.Scan(&o.ID, &oppUUID, &o.PharmacyID, &o.PatientID, &triggerID,
			&o.CurrentDrugName, &o.RecommendedDrugName, &o.RecommendedDrugNDC, &o.RecommendedDrugKey,
			&o.MonthlyGain, &o.AnnualGain, &o.Confidence, &o.Status, &o.PrescriberName, &o.Notes,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.UUID = uuid.Parse(oppUUID)
		if triggerID.Valid {
			id := uint(triggerID.Int64)
			o.TriggerID = &id
		}
		opportunities = append(opportunities, &o)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return opportunities, nil
}

func (r *Repository) CreateOpportunity(ctx context.Context, opp *models.Opportunity) (uint, error) {
	var triggerID sql.NullInt64
	if opp.TriggerID != nil {
		triggerID = sql.NullInt64{Int64: int64(*opp.TriggerID), Valid: true}
	}

	query, args := sqlbuilder.Buildf(`INSERT INTO opportunities
		(uuid, pharmacy_id, patient_id, trigger_id,
			current_drug_name, recommended_drug_name, recommended_drug_ndc, recommended_drug_key,
			monthly_gain, annual_gain, confidence, status, prescriber_name, notes,
			created_at, updated_at) VALUES
		(%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, NOW(), NOW()) RETURNING id`,
		opp.UUID.String(), opp.PharmacyID, opp.PatientID, triggerID,
		opp.CurrentDrugName, opp.RecommendedDrugName, opp.RecommendedDrugNDC, opp.RecommendedDrugKey,
		opp.MonthlyGain, opp.AnnualGain, opp.Confidence, opp.Status, opp.PrescriberName, opp.Notes).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) UpdateOpportunity(ctx context.Context, opportunityID uint, fieldsAndValues map[string]interface{}) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("opportunities")
	for field, value := range fieldsAndValues {
		ub.SetMore(ub.Assign(field, value))
	}
	ub.SetMore("updated_at = NOW()")
	ub.Where(ub.Equal("id", opportunityID))

	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return models.ErrOpportunityNotFound
	}

	return nil
}

func (r *Repository) DeleteOpportunity(ctx context.Context, opportunityID uint) error {
	// The status guard lives in the statement so a concurrent submission
	// between read and delete cannot remove actioned work.
	db := sqlFlavor.NewDeleteBuilder().DeleteFrom("opportunities")
	db.Where(
		db.Equal("id", opportunityID),
		db.Equal("status", constants.StatusNotSubmitted),
	)

	query, args := db.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("status")
	sb.From("opportunities").Where(sb.Equal("id", opportunityID))

	query, args = sb.Build()
	var status string
	if err := r.QueryRowContext(ctx, query, args...).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrOpportunityNotFound
		}
		return err
	}

	return models.ErrOpportunityActioned
}

func (r *Repository) CreateDataQualityIssue(ctx context.Context, issue models.DataQualityIssue) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO data_quality_issues
		(opportunity_id, issue_type, field_name, original_value, status, created_at) VALUES
		(%s, %s, %s, %s, %s, NOW()) RETURNING id`,
		issue.OpportunityID, issue.IssueType, issue.FieldName, issue.OriginalValue, issue.Status).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetPendingIssues(ctx context.Context, opportunityID uint) ([]*models.DataQualityIssue, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "opportunity_id", "issue_type", "field_name", "original_value", "status", "created_at")
	sb.From("data_quality_issues").Where(
		sb.Equal("opportunity_id", opportunityID),
		sb.Equal("status", constants.IssuePending),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []*models.DataQualityIssue
	for rows.Next() {
		var issue models.DataQualityIssue
		if err := rows.Scan(&issue.ID, &issue.OpportunityID, &issue.IssueType, &issue.FieldName,
			&issue.OriginalValue, &issue.Status, &issue.CreatedAt); err != nil {
			return nil, err
		}
		issues = append(issues, &issue)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return issues, nil
}

func (r *Repository) ResolveDataQualityIssues(ctx context.Context, opportunityID uint, issueType string) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("data_quality_issues")
	ub.Set(ub.Assign("status", constants.IssueResolved))
	ub.Where(
		ub.Equal("opportunity_id", opportunityID),
		ub.Equal("issue_type", issueType),
		ub.Equal("status", constants.IssuePending),
	)

	query, args := ub.Build()
	_, err := r.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) DeleteIssuesForOpportunity(ctx context.Context, opportunityID uint) error {
	db := sqlFlavor.NewDeleteBuilder().DeleteFrom("data_quality_issues")
	db.Where(db.Equal("opportunity_id", opportunityID))

	query, args := db.Build()
	_, err := r.ExecContext(ctx, query, args...)
	return err
}
