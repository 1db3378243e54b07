package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/switchrx/oppscan-app/oppscan/constants"
	"github.com/switchrx/oppscan-app/oppscan/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"uppercase", "metFORmin", "METFORMIN"},
		{"punctuation to whitespace", "FREESTYLE-LIBRE 2, SENSOR", "FREESTYLE LIBRE 2 SENSOR"},
		{"collapse whitespace", "PURE   COMFORT    LANCET", "PURE COMFORT LANCET"},
		{"trim", "  LANCET  ", "LANCET"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(sub *testing.T) {
			assert.Equal(sub, tt.want, Normalize(tt.in))
		})
	}
}

func TestDeriveKeywords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"drops short and numeric tokens", "VITAMIN D 50000 IU", []string{"VITAMIN"}},
		{"drops skip words", "POTASSIUM CHLORIDE ER 20 MEQ TABLET", []string{"POTASSIUM", "CHLORIDE"}},
		{"drops strength tokens", "ATORVASTATIN 40MG TABS", []string{"ATORVASTATIN"}},
		{"drops gauge tokens and deduplicates", "LANCET LANCET 30G", []string{"LANCET"}},
		{"nothing derivable", "30 TAB OF 10", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(sub *testing.T) {
			assert.Equal(sub, tt.want, DeriveKeywords(tt.in))
		})
	}
}

// A salt name is a distinguishing part of the ingredient and must never be
// treated as a unit abbreviation.
func TestSkipWordsDoNotSwallowSaltNames(t *testing.T) {
	for _, salt := range []string{"CHLORIDE", "SULFATE", "GLUCONATE", "CITRATE"} {
		_, skipped := skipWords[salt]
		assert.False(t, skipped, "salt name %s must not be a skip word", salt)
	}
}

func TestMatchAnyMode(t *testing.T) {
	trigger := &models.Trigger{
		ID:                  1,
		Name:                "Lancet switch",
		MatchMode:           constants.MatchModeAny,
		Keywords:            []string{"LANCET"},
		ExclusionPhrases:    []string{"SAFETY"},
		RecommendedDrugName: "PURE COMFORT LANCET",
	}

	tests := []struct {
		drugName string
		matched  bool
		excluded bool
	}{
		{"PURE COMFORT LANCET", true, false},
		{"SAFETY LANCET 30G", true, true},
		{"ALCOHOL PREP PADS", false, false},
		{"pure comfort lancet 30g", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.drugName, func(sub *testing.T) {
			got := Match(tt.drugName, trigger)
			assert.Equal(sub, tt.matched, got.Matched)
			assert.Equal(sub, tt.excluded, got.Excluded)
		})
	}
}

func TestMatchAllMode(t *testing.T) {
	trigger := &models.Trigger{
		ID:        2,
		MatchMode: constants.MatchModeAll,
		Keywords:  []string{"FREESTYLE", "LIBRE"},
	}

	assert.True(t, Match("FREESTYLE LIBRE 2 SENSOR", trigger).Matched)
	assert.False(t, Match("FREESTYLE LITE STRIPS", trigger).Matched)
}

func TestMatchDerivesKeywordsFromRecommendedDrug(t *testing.T) {
	trigger := &models.Trigger{
		ID:                  3,
		MatchMode:           constants.MatchModeAny,
		RecommendedDrugName: "UNIFINE PENTIPS 31G",
	}

	assert.True(t, Match("UNIFINE PENTIPS PLUS", trigger).Matched)
	assert.False(t, Match("BD PEN NEEDLE", trigger).Matched)
}

// Fixed inputs always produce the same result; matching owns no state.
func TestMatchDeterminism(t *testing.T) {
	trigger := &models.Trigger{
		ID:               4,
		MatchMode:        constants.MatchModeAny,
		Keywords:         []string{"LANCET"},
		ExclusionPhrases: []string{"SAFETY"},
	}

	first := Match("SAFETY LANCET 30G", trigger)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Match("SAFETY LANCET 30G", trigger))
	}
}

func TestMatchMultiWordExclusion(t *testing.T) {
	trigger := &models.Trigger{
		ID:               5,
		MatchMode:        constants.MatchModeAny,
		Keywords:         []string{"SENSOR"},
		ExclusionPhrases: []string{"LIBRE 3"},
	}

	// all of the phrase's derived words must be present
	assert.True(t, Match("FREESTYLE LIBRE 3 SENSOR", trigger).Excluded)
	assert.False(t, Match("FREESTYLE LIBRE 2 SENSOR", trigger).Excluded)
}

func TestValidateTrigger(t *testing.T) {
	tests := []struct {
		name    string
		trigger models.Trigger
		wantErr bool
	}{
		{
			"valid",
			models.Trigger{ID: 1, RecommendedDrugName: "PURE COMFORT LANCET", ExclusionPhrases: []string{"SAFETY"}},
			false,
		},
		{
			"no derivable keywords",
			models.Trigger{ID: 2, RecommendedDrugName: "30 MG TABLET"},
			true,
		},
		{
			"self-excluding phrase",
			models.Trigger{ID: 3, RecommendedDrugName: "SAFETY LANCET", ExclusionPhrases: []string{"SAFETY"}},
			true,
		},
		{
			"bad match mode",
			models.Trigger{ID: 4, RecommendedDrugName: "PURE COMFORT LANCET", MatchMode: "some"},
			true,
		},
		{
			"exclusion phrase with no derivable words is ignored",
			models.Trigger{ID: 5, RecommendedDrugName: "PURE COMFORT LANCET", ExclusionPhrases: []string{"--"}},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(sub *testing.T) {
			err := ValidateTrigger(&tt.trigger)
			if tt.wantErr {
				assert.Error(sub, err)
			} else {
				assert.NoError(sub, err)
			}
		})
	}
}

func TestValidateCatalog(t *testing.T) {
	triggers := []*models.Trigger{
		{ID: 1, RecommendedDrugName: "PURE COMFORT LANCET"},
		{ID: 2, RecommendedDrugName: "30 MG"},
		{ID: 3, RecommendedDrugName: "SAFETY LANCET", ExclusionPhrases: []string{"SAFETY LANCET"}},
	}

	errs := ValidateCatalog(triggers)
	assert.Len(t, errs, 2)
	assert.NotContains(t, errs, uint(1))
	assert.Contains(t, errs, uint(2))
	assert.Contains(t, errs, uint(3))
}
