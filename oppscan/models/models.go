package models

import (
	"strings"
	"time"

	"github.com/pborman/uuid"

	"github.com/switchrx/oppscan-app/oppscan/constants"
)

// Trigger is a clinically authored drug-switch rule. Triggers are read-only
// to the engine; authoring and edits happen in the administrative surface.
type Trigger struct {
	ID       uint
	Name     string
	Category string

	// Keywords holds the explicit detection keyword list. When empty, the
	// matcher derives keywords from RecommendedDrugName.
	Keywords         []string
	ExclusionPhrases []string
	MatchMode        string

	RecommendedDrugName string
	RecommendedDrugNDC  string

	// ExpectedQuantity and ExpectedDaysSupply form the normalization basis
	// for per-fill profit. Zero means unset.
	ExpectedQuantity   float64
	ExpectedDaysSupply int

	// DefaultProfit is the fallback per-fill estimate when no payer-specific
	// coverage record exists.
	DefaultProfit float64
	AnnualFills   int

	Enabled bool
}

// ExpectedAnnualFills returns the trigger's annualization factor.
func (t *Trigger) ExpectedAnnualFills() int {
	if t.AnnualFills > 0 {
		return t.AnnualFills
	}
	return 12
}

// Claim is one dispensing event. Claims are immutable once ingested and are
// owned by the ingestion pipeline; the engine only reads them.
type Claim struct {
	ID         uint
	PharmacyID uint
	PatientID  uint

	DrugName   string
	NDC        string
	Quantity   float64
	DaysSupply *int

	BIN     string
	GroupID *string

	PrescriberName string

	// Payload carries payer-specific profit fields under inconsistent key
	// names. The inconsistency is a permanent input condition.
	Payload map[string]interface{}

	DispensedAt time.Time
}

// Patient supplies fallback insurance identifiers for claims that arrived
// without their own.
type Patient struct {
	ID           uint
	PharmacyID   uint
	PrimaryBIN   string
	PrimaryGroup *string
}

// CoverageRecord is the cached resolver output for one
// (trigger, BIN, normalized group). A nil GroupID means "any group under
// this BIN".
type CoverageRecord struct {
	ID        uint
	TriggerID uint
	BIN       string
	GroupID   *string

	Status       string
	ClaimCount   int
	MedianProfit *float64

	BestDrugName string
	BestDrugNDC  string

	UpdatedAt time.Time
}

// Opportunity is the actionable unit exposed to pharmacy staff.
type Opportunity struct {
	ID   uint
	UUID uuid.UUID

	PharmacyID uint
	PatientID  uint

	// TriggerID is nil only for legacy/imported records, which the engine
	// tolerates but never produces.
	TriggerID *uint

	CurrentDrugName     string
	RecommendedDrugName string
	RecommendedDrugNDC  string

	// RecommendedDrugKey is the normalized recommended-drug text used as the
	// deduplication key component.
	RecommendedDrugKey string

	MonthlyGain float64
	AnnualGain  float64

	Confidence string
	Status     string

	PrescriberName string
	Notes          string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DataQualityIssue flags an opportunity that is missing required attribution.
type DataQualityIssue struct {
	ID            uint
	OpportunityID uint
	IssueType     string
	FieldName     string
	OriginalValue string
	Status        string
	CreatedAt     time.Time
}

// statusPrecedence orders opportunity statuses for merge decisions. Higher
// wins. Only Not Submitted is engine-created; everything above it is staff
// action and must never be downgraded.
var statusPrecedence = map[string]int{
	constants.StatusDenied:       0,
	constants.StatusDeclined:     0,
	constants.StatusFlagged:      2,
	constants.StatusNotSubmitted: 3,
	constants.StatusSubmitted:    4,
	constants.StatusApproved:     5,
	constants.StatusCompleted:    6,
}

// StatusPrecedence returns the merge precedence of a status. Unrecognized
// statuses rank below everything so they never displace real work.
func StatusPrecedence(status string) int {
	if p, ok := statusPrecedence[status]; ok {
		return p
	}
	return -1
}

// IsActioned reports whether staff have acted on the opportunity.
func IsActioned(status string) bool {
	return status != constants.StatusNotSubmitted
}

// IsTerminalNegative reports whether the status ends the opportunity's
// lifecycle without a switch. Terminal-negative records may coexist with a
// fresh attempt for the same key.
func IsTerminalNegative(status string) bool {
	return status == constants.StatusDenied || status == constants.StatusDeclined
}

// NormalizeGroup maps raw insurance group text onto the canonical form used
// for coverage keys: trimmed, uppercased, empty collapsed to nil.
func NormalizeGroup(group *string) *string {
	if group == nil {
		return nil
	}
	g := strings.ToUpper(strings.TrimSpace(*group))
	if g == "" {
		return nil
	}
	return &g
}

// GroupKey renders a normalized group for use in a map key.
func GroupKey(group *string) string {
	if g := NormalizeGroup(group); g != nil {
		return *g
	}
	return ""
}
