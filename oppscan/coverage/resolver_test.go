package coverage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchrx/oppscan-app/oppscan/constants"
	"github.com/switchrx/oppscan-app/oppscan/models"
)

var now = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func lancetTrigger() *models.Trigger {
	return &models.Trigger{
		ID:                  1,
		Name:                "Lancet switch",
		MatchMode:           constants.MatchModeAny,
		Keywords:            []string{"LANCET"},
		ExclusionPhrases:    []string{"SAFETY"},
		RecommendedDrugName: "PURE COMFORT LANCET",
		ExpectedQuantity:    100,
	}
}

func lancetClaim(bin string, group *string, profit float64) *models.Claim {
	return &models.Claim{
		DrugName:    "PURE COMFORT LANCET",
		NDC:         "08317030001",
		Quantity:    100,
		DaysSupply:  intPtr(30),
		BIN:         bin,
		GroupID:     group,
		Payload:     map[string]interface{}{"net_profit": profit},
		DispensedAt: now.AddDate(0, -1, 0),
	}
}

func TestResolveGroupsByPayer(t *testing.T) {
	claims := []*models.Claim{
		lancetClaim("004336", strPtr("XYZ"), 40.0),
		lancetClaim("004336", strPtr("XYZ"), 50.0),
		lancetClaim("004336", strPtr("XYZ"), 45.0),
		lancetClaim("004336", nil, 30.0),
		lancetClaim("610591", strPtr("ABC"), 20.0),
	}

	records := Resolve(lancetTrigger(), claims, nil, DefaultMinDaysSupply, now)
	require.Len(t, records, 3)

	// deterministic ordering: BIN, then group
	assert.Equal(t, "004336", records[0].BIN)
	assert.Nil(t, records[0].GroupID)
	assert.Equal(t, "004336", records[1].BIN)
	assert.Equal(t, "XYZ", *records[1].GroupID)
	assert.Equal(t, "610591", records[2].BIN)

	// median of 40, 50, 45
	require.NotNil(t, records[1].MedianProfit)
	assert.InDelta(t, 45.0, *records[1].MedianProfit, 0.001)
	assert.Equal(t, constants.CoverageVerified, records[1].Status)
	assert.Equal(t, 3, records[1].ClaimCount)
	assert.Equal(t, "PURE COMFORT LANCET", records[1].BestDrugName)
	assert.Equal(t, "08317030001", records[1].BestDrugNDC)
}

func TestResolveMedianResistsOutlier(t *testing.T) {
	// One corrupted claim must not drag the payer cell; this is why the
	// aggregation is a median and not a mean or a sum.
	claims := []*models.Claim{
		lancetClaim("004336", nil, 12.0),
		lancetClaim("004336", nil, 14.0),
		lancetClaim("004336", nil, 9000.0),
	}

	records := Resolve(lancetTrigger(), claims, nil, DefaultMinDaysSupply, now)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].MedianProfit)
	assert.InDelta(t, 14.0, *records[0].MedianProfit, 0.001)
}

func TestResolveSkipsExcludedAndUnmatchedClaims(t *testing.T) {
	claims := []*models.Claim{
		lancetClaim("004336", nil, 40.0),
		{
			DrugName: "SAFETY LANCET 30G",
			Quantity: 100, DaysSupply: intPtr(30),
			BIN:     "004336",
			Payload: map[string]interface{}{"net_profit": 99.0},
		},
		{
			DrugName: "ALCOHOL PREP PADS",
			Quantity: 100, DaysSupply: intPtr(30),
			BIN:     "004336",
			Payload: map[string]interface{}{"net_profit": 99.0},
		},
	}

	records := Resolve(lancetTrigger(), claims, nil, DefaultMinDaysSupply, now)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].ClaimCount)
	assert.InDelta(t, 40.0, *records[0].MedianProfit, 0.001)
}

func TestResolveShortFillsExcluded(t *testing.T) {
	short := lancetClaim("004336", nil, 40.0)
	short.DaysSupply = intPtr(7)

	records := Resolve(lancetTrigger(), []*models.Claim{short}, nil, DefaultMinDaysSupply, now)
	assert.Empty(t, records)
}

func TestResolveUnusableProfitYieldsUnknown(t *testing.T) {
	claim := lancetClaim("004336", nil, 0)
	claim.Payload = map[string]interface{}{"rx_number": "123"}

	records := Resolve(lancetTrigger(), []*models.Claim{claim}, nil, DefaultMinDaysSupply, now)
	require.Len(t, records, 1)
	assert.Equal(t, constants.CoverageUnknown, records[0].Status)
	assert.Nil(t, records[0].MedianProfit)
	assert.Equal(t, 1, records[0].ClaimCount)
}

func TestResolveExcludedOverrideWins(t *testing.T) {
	claims := []*models.Claim{lancetClaim("004336", strPtr("XYZ"), 40.0)}
	overrides := map[string]bool{Key("004336", strPtr("XYZ")): true}

	records := Resolve(lancetTrigger(), claims, overrides, DefaultMinDaysSupply, now)
	require.Len(t, records, 1)
	assert.Equal(t, constants.CoverageExcluded, records[0].Status)
}

func TestResolveIdempotent(t *testing.T) {
	claims := []*models.Claim{
		lancetClaim("004336", strPtr("XYZ"), 40.0),
		lancetClaim("004336", nil, 30.0),
		lancetClaim("610591", strPtr("ABC"), 20.0),
	}

	first := Resolve(lancetTrigger(), claims, nil, DefaultMinDaysSupply, now)
	second := Resolve(lancetTrigger(), claims, nil, DefaultMinDaysSupply, now)
	assert.Equal(t, first, second)
}

func TestResolveGroupNormalization(t *testing.T) {
	// " xyz " and "XYZ" are the same payer cell; at most one record per
	// (trigger, BIN, normalized group).
	claims := []*models.Claim{
		lancetClaim("004336", strPtr(" xyz "), 40.0),
		lancetClaim("004336", strPtr("XYZ"), 50.0),
	}

	records := Resolve(lancetTrigger(), claims, nil, DefaultMinDaysSupply, now)
	require.Len(t, records, 1)
	assert.Equal(t, "XYZ", *records[0].GroupID)
	assert.Equal(t, 2, records[0].ClaimCount)
}

func TestMinDaysSupplyFloor(t *testing.T) {
	assert.Equal(t, 72, MinDaysSupplyFloor(&models.Trigger{ExpectedDaysSupply: 90}, DefaultSupplyFloorPct, DefaultMinDaysSupply))
	assert.Equal(t, 28, MinDaysSupplyFloor(&models.Trigger{}, DefaultSupplyFloorPct, DefaultMinDaysSupply))
}

func TestIndexConfidence(t *testing.T) {
	records := []*models.CoverageRecord{
		{TriggerID: 1, BIN: "004336", GroupID: nil, Status: constants.CoverageVerified, MedianProfit: floatPtr(45.0)},
		{TriggerID: 1, BIN: "004336", GroupID: strPtr("ABC"), Status: constants.CoverageExcluded},
		{TriggerID: 1, BIN: "610591", GroupID: strPtr("DEF"), Status: constants.CoverageUnknown},
	}
	idx := NewIndex(records)

	// exact verified wins regardless of other records under the BIN
	assert.Equal(t, constants.ConfidenceVerified, idx.Confidence("004336", nil))

	// exact excluded wins
	assert.Equal(t, constants.ConfidenceExcluded, idx.Confidence("004336", strPtr("ABC")))

	// no exact cell, but verified evidence under the BIN
	assert.Equal(t, constants.ConfidenceLikely, idx.Confidence("004336", strPtr("XYZ")))

	// unknown cell, no verified evidence under the BIN
	assert.Equal(t, constants.ConfidenceUnknown, idx.Confidence("610591", strPtr("DEF")))
	assert.Equal(t, constants.ConfidenceUnknown, idx.Confidence("999999", nil))
}

func floatPtr(f float64) *float64 { return &f }
