package constants

// Opportunity statuses. The engine only ever creates opportunities in
// StatusNotSubmitted; every other status is applied by pharmacy staff through
// the API layer.
const (
	StatusDenied       = "Denied"
	StatusDeclined     = "Declined"
	StatusFlagged      = "Flagged"
	StatusNotSubmitted = "Not Submitted"
	StatusSubmitted    = "Submitted"
	StatusApproved     = "Approved"
	StatusCompleted    = "Completed"
)

// Coverage statuses for a (trigger, BIN, group) record.
const (
	CoverageVerified = "verified"
	CoverageExcluded = "excluded"
	CoverageUnknown  = "unknown"
)

// Coverage confidence attached to an opportunity.
const (
	ConfidenceExcluded = "excluded"
	ConfidenceVerified = "verified"
	ConfidenceLikely   = "likely"
	ConfidenceUnknown  = "unknown"
)

// Trigger match modes over detection keywords.
const (
	MatchModeAny = "any"
	MatchModeAll = "all"
)

// Data quality issue types and statuses.
const (
	IssueMissingPrescriber  = "missing_prescriber"
	IssueMissingCurrentDrug = "missing_current_drug"

	IssuePending  = "pending"
	IssueResolved = "resolved"
)

// UnknownSentinel is the free-text value ingestion writes when a claim field
// was present but unusable.
const UnknownSentinel = "UNKNOWN"

// This is set during compilation. See the build scripts in the ops repo.
var Version = "latest"
