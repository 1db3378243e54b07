package matcher

// skipWords are tokens that never distinguish one product from another:
// dosage forms, release markers, units, and connective words. The list is
// deliberately conservative. Salt and mineral names (CHLORIDE, SULFATE,
// GLUCONATE, ...) are NOT skip words: they are part of the active
// ingredient and dropping them makes unrelated products collide.
var skipWords = map[string]struct{}{
	// dosage forms
	"TAB": {}, "TABS": {}, "TABLET": {}, "TABLETS": {},
	"CAP": {}, "CAPS": {}, "CAPSULE": {}, "CAPSULES": {},
	"SOLN": {}, "SOLUTION": {}, "SUSP": {}, "SUSPENSION": {},
	"CREAM": {}, "OINT": {}, "OINTMENT": {}, "GEL": {}, "LOTION": {},
	"PATCH": {}, "INJ": {}, "INJECTION": {}, "SYRINGE": {}, "PEN": {},
	"KIT": {}, "DROPS": {}, "SPRAY": {}, "POWDER": {},

	// strength units
	"MG": {}, "MCG": {}, "ML": {}, "GM": {}, "GRAM": {}, "IU": {},
	"UNIT": {}, "UNITS": {}, "MEQ": {}, "ACT": {}, "HR": {},

	// release markers
	"ER": {}, "XR": {}, "SR": {}, "DR": {}, "CR": {}, "IR": {},
	"ODT": {}, "EC": {},

	// connectives
	"OF": {}, "AND": {}, "WITH": {}, "FOR": {}, "THE": {}, "PER": {},
}

// SkipWords returns the skip-word list for auditing.
func SkipWords() []string {
	words := make([]string, 0, len(skipWords))
	for w := range skipWords {
		words = append(words, w)
	}
	return words
}
