package service

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/switchrx/oppscan-app/log"
	"github.com/switchrx/oppscan-app/oppscan/constants"
	"github.com/switchrx/oppscan-app/oppscan/models"
)

// RunQualityGate reconciles attribution issues across all trigger-created
// opportunities. Legacy records with no TriggerID are not the engine's to
// police and are left alone.
func (s *service) RunQualityGate(ctx context.Context) (*QualityResult, error) {
	opps, err := s.repository.GetTriggeredOpportunities(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to retrieve triggered opportunities")
	}

	result := &QualityResult{}
	for _, opp := range opps {
		result.OpportunitiesChecked++
		created, resolved, err := s.syncIssues(ctx, s.repository, opp)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to reconcile issues for opportunity %d", opp.ID)
		}
		result.IssuesCreated += created
		result.IssuesResolved += resolved
	}

	log.Quality.WithFields(logrus.Fields{
		"opportunitiesChecked": result.OpportunitiesChecked,
		"issuesCreated":        result.IssuesCreated,
		"issuesResolved":       result.IssuesResolved,
	}).Info("Quality gate pass complete.")

	return result, nil
}

// reconcileIssues runs the quality gate for one opportunity inside the
// caller's transaction, so a created record and its issues land together.
func (s *service) reconcileIssues(ctx context.Context, r models.Repository, opp *models.Opportunity) error {
	_, _, err := s.syncIssues(ctx, r, opp)
	return err
}

func (s *service) syncIssues(ctx context.Context, r models.Repository, opp *models.Opportunity) (created, resolved int, err error) {
	checks := []struct {
		issueType string
		fieldName string
		value     string
	}{
		{constants.IssueMissingPrescriber, "prescriber_name", opp.PrescriberName},
		{constants.IssueMissingCurrentDrug, "current_drug_name", opp.CurrentDrugName},
	}

	pending, err := r.GetPendingIssues(ctx, opp.ID)
	if err != nil {
		return 0, 0, err
	}
	open := make(map[string]bool, len(pending))
	for _, issue := range pending {
		open[issue.IssueType] = true
	}

	for _, check := range checks {
		failing := missingValue(check.value)
		switch {
		case failing && !open[check.issueType]:
			if _, err := r.CreateDataQualityIssue(ctx, models.DataQualityIssue{
				OpportunityID: opp.ID,
				IssueType:     check.issueType,
				FieldName:     check.fieldName,
				OriginalValue: check.value,
				Status:        constants.IssuePending,
			}); err != nil {
				return created, resolved, err
			}
			created++
		case !failing && open[check.issueType]:
			if err := r.ResolveDataQualityIssues(ctx, opp.ID, check.issueType); err != nil {
				return created, resolved, err
			}
			resolved++
		}
	}

	return created, resolved, nil
}

// missingValue reports whether an attribution field is effectively absent.
// Feeds sometimes deliver the literal sentinel instead of an empty string.
func missingValue(v string) bool {
	return v == "" || v == constants.UnknownSentinel
}
