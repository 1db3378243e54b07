// package matcher decides whether a claim's drug-name text matches a
// trigger's detection keywords and whether it is excluded. Matching is a pure
// function over its inputs; no data store is consulted.
package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/switchrx/oppscan-app/oppscan/constants"
	"github.com/switchrx/oppscan-app/oppscan/models"
)

var (
	punctuation = regexp.MustCompile(`[^A-Z0-9]+`)
	whitespace  = regexp.MustCompile(`\s+`)
	numeric     = regexp.MustCompile(`^[0-9]+$`)

	// strength tokens like 100MG or 5ML carry no product identity
	strength = regexp.MustCompile(`^[0-9]+(MG|MCG|ML|GM|G|MEQ|HR|UNITS?)$`)
)

// Result is the outcome of matching one claim against one trigger.
type Result struct {
	Matched  bool
	Excluded bool
}

// Normalize maps free-text drug names onto the canonical matching form:
// uppercase, punctuation collapsed to whitespace, repeated whitespace
// collapsed.
func Normalize(text string) string {
	text = strings.ToUpper(text)
	text = punctuation.ReplaceAllString(text, " ")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// DeriveKeywords splits normalized text into search keywords, discarding
// tokens shorter than 2 characters, pure numeric tokens, strength tokens,
// and skip words.
func DeriveKeywords(text string) []string {
	var keywords []string
	seen := make(map[string]struct{})

	for _, token := range strings.Fields(Normalize(text)) {
		if len(token) < 2 {
			continue
		}
		if numeric.MatchString(token) || strength.MatchString(token) {
			continue
		}
		if _, skip := skipWords[token]; skip {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
	}

	return keywords
}

// SearchKeywords returns the trigger's effective detection keywords: the
// explicit keyword list when present, otherwise keywords derived from the
// recommended-drug text.
func SearchKeywords(t *models.Trigger) []string {
	if len(t.Keywords) > 0 {
		var keywords []string
		for _, k := range t.Keywords {
			if n := Normalize(k); n != "" {
				keywords = append(keywords, n)
			}
		}
		return keywords
	}
	return DeriveKeywords(t.RecommendedDrugName)
}

// Match reports whether the drug-name text matches the trigger's detection
// keywords, and whether an exclusion phrase rules it out. The two are
// reported independently; callers skip a claim unless matched and not
// excluded.
func Match(drugNameText string, t *models.Trigger) Result {
	norm := Normalize(drugNameText)
	keywords := SearchKeywords(t)
	if norm == "" || len(keywords) == 0 {
		return Result{}
	}

	var matched bool
	switch t.MatchMode {
	case constants.MatchModeAll:
		matched = true
		for _, k := range keywords {
			if !strings.Contains(norm, k) {
				matched = false
				break
			}
		}
	default:
		// any
		for _, k := range keywords {
			if strings.Contains(norm, k) {
				matched = true
				break
			}
		}
	}

	return Result{Matched: matched, Excluded: isExcluded(norm, t.ExclusionPhrases)}
}

// derivePhraseWords splits an exclusion phrase into words. Unlike detection
// keywords, numeric tokens survive: "LIBRE 3" must not collapse to "LIBRE"
// and swallow every sensor generation.
func derivePhraseWords(phrase string) []string {
	return strings.Fields(Normalize(phrase))
}

// isExcluded reports whether any exclusion phrase has all of its derived
// words present in the normalized drug text.
func isExcluded(norm string, phrases []string) bool {
	for _, phrase := range phrases {
		words := derivePhraseWords(phrase)
		if len(words) == 0 {
			continue
		}
		all := true
		for _, w := range words {
			if !strings.Contains(norm, w) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// ValidateTrigger enforces the catalog invariants: a trigger must have at
// least one derivable search keyword, and no exclusion phrase may be fully
// satisfied by the trigger's own recommended-drug text. Both are
// configuration errors to reject up front, not runtime conditions.
func ValidateTrigger(t *models.Trigger) error {
	keywords := SearchKeywords(t)
	if len(keywords) == 0 {
		return fmt.Errorf("trigger %d (%s): no derivable search keywords from %q",
			t.ID, t.Name, t.RecommendedDrugName)
	}

	recommended := Normalize(t.RecommendedDrugName)
	for _, phrase := range t.ExclusionPhrases {
		words := derivePhraseWords(phrase)
		if len(words) == 0 {
			continue
		}
		all := true
		for _, w := range words {
			if !strings.Contains(recommended, w) {
				all = false
				break
			}
		}
		if all {
			return fmt.Errorf("trigger %d (%s): exclusion phrase %q excludes the trigger's own recommended drug %q",
				t.ID, t.Name, phrase, t.RecommendedDrugName)
		}
	}

	if t.MatchMode != "" && t.MatchMode != constants.MatchModeAny && t.MatchMode != constants.MatchModeAll {
		return fmt.Errorf("trigger %d (%s): unrecognized match mode %q", t.ID, t.Name, t.MatchMode)
	}

	return nil
}

// ValidateCatalog validates every trigger and returns the per-trigger
// configuration errors, sorted by trigger ID. A bad trigger never hides the
// others.
func ValidateCatalog(triggers []*models.Trigger) map[uint]error {
	errs := make(map[uint]error)
	for _, t := range triggers {
		if err := ValidateTrigger(t); err != nil {
			errs[t.ID] = err
		}
	}
	return errs
}
