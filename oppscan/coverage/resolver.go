// package coverage turns a trigger's matched claim history into per-payer
// CoverageRecords. Resolution is deterministic over its inputs: re-running
// with the same claims produces the same records.
package coverage

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-gota/gota/series"

	"github.com/switchrx/oppscan-app/oppscan/constants"
	"github.com/switchrx/oppscan-app/oppscan/finance"
	"github.com/switchrx/oppscan-app/oppscan/matcher"
	"github.com/switchrx/oppscan-app/oppscan/models"
)

const (
	// DefaultLookbackDays bounds how far back claim evidence counts.
	DefaultLookbackDays = 365

	// DefaultMinDaysSupply is the generic floor excluding short or partial
	// fills when the trigger declares no expected days supply.
	DefaultMinDaysSupply = 28

	// DefaultSupplyFloorPct is the fraction of the trigger's expected days
	// supply a claim must reach to count as evidence.
	DefaultSupplyFloorPct = 0.8
)

// Key identifies one (BIN, normalized group) payer cell.
func Key(bin string, group *string) string {
	return fmt.Sprintf("%s|%s", bin, models.GroupKey(group))
}

// MinDaysSupplyFloor computes the trigger's effective days-supply floor.
func MinDaysSupplyFloor(t *models.Trigger, floorPct float64, genericFloor int) int {
	if t.ExpectedDaysSupply > 0 {
		return int(floorPct * float64(t.ExpectedDaysSupply))
	}
	return genericFloor
}

type payerGroup struct {
	bin   string
	group *string

	claimCount int
	profits    []float64

	drugCounts map[string]int
	drugNDC    map[string]string
}

// Resolve computes CoverageRecords for one trigger over its recent claims.
// The excludedOverrides set carries administrative exclusions keyed by
// Key(bin, group); an override wins over any claim evidence.
func Resolve(trigger *models.Trigger, recentClaims []*models.Claim,
	excludedOverrides map[string]bool, minDaysSupply int, now time.Time) []*models.CoverageRecord {

	groups := make(map[string]*payerGroup)

	for _, claim := range recentClaims {
		result := matcher.Match(claim.DrugName, trigger)
		if !result.Matched || result.Excluded {
			continue
		}
		if claim.BIN == "" {
			continue
		}
		if finance.EffectiveDaysSupply(claim) < minDaysSupply {
			continue
		}

		key := Key(claim.BIN, claim.GroupID)
		group, ok := groups[key]
		if !ok {
			group = &payerGroup{
				bin:        claim.BIN,
				group:      models.NormalizeGroup(claim.GroupID),
				drugCounts: make(map[string]int),
				drugNDC:    make(map[string]string),
			}
			groups[key] = group
		}

		group.claimCount++
		group.drugCounts[claim.DrugName]++
		if _, seen := group.drugNDC[claim.DrugName]; !seen {
			group.drugNDC[claim.DrugName] = claim.NDC
		}

		if normalized := finance.Normalize(claim, trigger); normalized != nil {
			group.profits = append(group.profits, *normalized)
		}
	}

	records := make([]*models.CoverageRecord, 0, len(groups))
	for key, group := range groups {
		record := &models.CoverageRecord{
			TriggerID:  trigger.ID,
			BIN:        group.bin,
			GroupID:    group.group,
			ClaimCount: group.claimCount,
			UpdatedAt:  now,
		}

		// Median, not mean: one claim with bad data must not drag the
		// whole payer cell.
		if len(group.profits) > 0 {
			median := series.Floats(group.profits).Median()
			record.MedianProfit = &median
		}

		switch {
		case excludedOverrides[key]:
			record.Status = constants.CoverageExcluded
		case len(group.profits) > 0:
			record.Status = constants.CoverageVerified
		default:
			record.Status = constants.CoverageUnknown
		}

		record.BestDrugName, record.BestDrugNDC = bestDrug(group)

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].BIN != records[j].BIN {
			return records[i].BIN < records[j].BIN
		}
		return models.GroupKey(records[i].GroupID) < models.GroupKey(records[j].GroupID)
	})

	return records
}

// bestDrug picks the most frequently observed product in the payer cell, so
// staff see the concrete item to request. Ties break lexicographically to
// keep resolution idempotent.
func bestDrug(group *payerGroup) (name, ndc string) {
	best := -1
	for drug, count := range group.drugCounts {
		if count > best || (count == best && drug < name) {
			best = count
			name = drug
			ndc = group.drugNDC[drug]
		}
	}
	return name, ndc
}

// Index is the lookup structure the opportunity generator consults: exact
// (BIN, group) cells plus a BIN-level view of verified evidence.
type Index struct {
	exact       map[string]*models.CoverageRecord
	binVerified map[string]bool
}

// NewIndex builds an Index over a trigger's CoverageRecords.
func NewIndex(records []*models.CoverageRecord) *Index {
	idx := &Index{
		exact:       make(map[string]*models.CoverageRecord, len(records)),
		binVerified: make(map[string]bool),
	}
	for _, record := range records {
		idx.exact[Key(record.BIN, record.GroupID)] = record
		if record.Status == constants.CoverageVerified {
			idx.binVerified[record.BIN] = true
		}
	}
	return idx
}

// Exact returns the record for the exact (BIN, group) cell, or nil.
func (idx *Index) Exact(bin string, group *string) *models.CoverageRecord {
	return idx.exact[Key(bin, group)]
}

// Confidence resolves the four-level coverage confidence for a payer,
// most to least specific: an exact excluded record, an exact verified
// record, any verified record under the same BIN, and finally unknown.
func (idx *Index) Confidence(bin string, group *string) string {
	if record := idx.Exact(bin, group); record != nil {
		switch record.Status {
		case constants.CoverageExcluded:
			return constants.ConfidenceExcluded
		case constants.CoverageVerified:
			return constants.ConfidenceVerified
		}
	}
	if idx.binVerified[bin] {
		return constants.ConfidenceLikely
	}
	return constants.ConfidenceUnknown
}
