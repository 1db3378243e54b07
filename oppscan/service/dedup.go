package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/switchrx/oppscan-app/oppscan/models"
)

// Deduplicate collapses live opportunities sharing a dedup key down to a
// single survivor. Survivor selection favors the furthest-along status,
// then the larger annual gain, then the earliest-created record. Actioned
// duplicates that lose are reported as conflicts instead of being removed.
func (s *service) Deduplicate(ctx context.Context) (*DedupResult, error) {
	live, err := s.repository.GetLiveOpportunities(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to retrieve live opportunities")
	}

	groups := make(map[string][]*models.Opportunity)
	for _, opp := range live {
		key := fmt.Sprintf("%d|%d|%s", opp.PharmacyID, opp.PatientID, opp.RecommendedDrugKey)
		groups[key] = append(groups[key], opp)
	}

	// Stable per-run ordering keeps repeated passes byte-for-byte identical.
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := &DedupResult{}
	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		result.GroupsProcessed++

		survivor := selectSurvivor(group)

		err := s.transactor.InTransaction(ctx, func(r models.Repository) error {
			for _, opp := range group {
				if opp.ID == survivor.ID {
					continue
				}
				if models.IsActioned(opp.Status) {
					result.Conflicts = append(result.Conflicts, DedupConflict{
						SurvivorID:    survivor.ID,
						OpportunityID: opp.ID,
						Status:        opp.Status,
					})
					continue
				}
				if err := r.DeleteIssuesForOpportunity(ctx, opp.ID); err != nil {
					return err
				}
				if err := r.DeleteOpportunity(ctx, opp.ID); err != nil {
					return err
				}
				result.Removed++
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to deduplicate group %s", key)
		}
	}

	if len(result.Conflicts) > 0 {
		s.logger.Warnf("Deduplication found %d actioned duplicates requiring manual review", len(result.Conflicts))
	}

	return result, nil
}

// selectSurvivor picks the record to keep out of a duplicate group.
func selectSurvivor(group []*models.Opportunity) *models.Opportunity {
	survivor := group[0]
	for _, opp := range group[1:] {
		if better(opp, survivor) {
			survivor = opp
		}
	}
	return survivor
}

func better(a, b *models.Opportunity) bool {
	ap, bp := models.StatusPrecedence(a.Status), models.StatusPrecedence(b.Status)
	if ap != bp {
		return ap > bp
	}
	if a.AnnualGain != b.AnnualGain {
		return a.AnnualGain > b.AnnualGain
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
