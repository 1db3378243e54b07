// package finance turns a raw claim's heterogeneous profit data into a
// per-standard-fill value that is comparable across unequal fill sizes.
// Normalization is a pure function; a claim that cannot be normalized yields
// nil and is simply absent from aggregation.
package finance

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/switchrx/oppscan-app/oppscan/models"
)

// profitKeys are the known explicit profit field variants, in resolution
// order. Payload key names are canonicalized (lowercased, separators
// stripped) before comparison; the naming drift across payers is a permanent
// input condition, not something ingestion will fix.
var profitKeys = []string{
	"netprofit",
	"profit",
	"grossprofit",
	"rxprofit",
	"margin",
}

// Component field variants for the fallback computation
// insurance_pay + patient_pay - acquisition_cost.
var (
	insurancePayKeys   = []string{"insurancepay", "inspay", "insurancepaid", "thirdpartypay"}
	patientPayKeys     = []string{"patientpay", "patientpaid", "copay"}
	acquisitionKeys    = []string{"acquisitioncost", "acqcost", "cost"}
	keySeparatorMapper = strings.NewReplacer("_", "", "-", "", " ", "")
)

const standardDaysSupply = 30

// ResolveProfit extracts a raw profit figure from the claim payload. The
// explicit profit field wins when present and non-zero; otherwise the value
// is reconstructed from pay and cost components. Returns nil when nothing
// usable is present.
func ResolveProfit(payload map[string]interface{}) *float64 {
	canonical := canonicalize(payload)

	for _, key := range profitKeys {
		if v, ok := canonical[key]; ok {
			if f, ok := toFloat(v); ok && f != 0 {
				return &f
			}
		}
	}

	insurance, insOK := firstFloat(canonical, insurancePayKeys)
	patient, patOK := firstFloat(canonical, patientPayKeys)
	acquisition, acqOK := firstFloat(canonical, acquisitionKeys)
	if !insOK && !patOK {
		return nil
	}
	if !acqOK {
		return nil
	}

	f := insurance + patient - acquisition
	return &f
}

// EffectiveDaysSupply returns the claim's recorded days supply, or an
// estimate from the dispensed quantity when the record is absent. The
// breakpoints assume a larger dispense covers a longer standard period.
func EffectiveDaysSupply(claim *models.Claim) int {
	if claim.DaysSupply != nil && *claim.DaysSupply > 0 {
		return *claim.DaysSupply
	}

	switch {
	case claim.Quantity >= 180:
		return 90
	case claim.Quantity >= 90:
		return 60
	case claim.Quantity > 0:
		return 30
	default:
		return 0
	}
}

// FillMultiple computes how many standard fills this dispense represents.
// A trigger-defined expected quantity is the preferred basis; otherwise the
// effective days supply is normalized to a nominal 30-day fill.
func FillMultiple(claim *models.Claim, trigger *models.Trigger) int {
	if trigger.ExpectedQuantity > 0 {
		multiple := int(math.Round(claim.Quantity / trigger.ExpectedQuantity))
		if multiple < 1 {
			multiple = 1
		}
		return multiple
	}

	days := EffectiveDaysSupply(claim)
	multiple := int(math.Ceil(float64(days) / standardDaysSupply))
	if multiple < 1 {
		multiple = 1
	}
	return multiple
}

// Normalize computes the claim's profit per standard fill under the
// trigger's normalization basis. A claim with zero/missing quantity or a
// non-positive raw profit yields nil, never zero: treating it as zero
// corrupts medians downstream.
func Normalize(claim *models.Claim, trigger *models.Trigger) *float64 {
	if claim.Quantity <= 0 {
		return nil
	}

	profit := ResolveProfit(claim.Payload)
	if profit == nil || *profit <= 0 {
		return nil
	}

	normalized := *profit / float64(FillMultiple(claim, trigger))
	return &normalized
}

func canonicalize(payload map[string]interface{}) map[string]interface{} {
	canonical := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		ck := keySeparatorMapper.Replace(strings.ToLower(strings.TrimSpace(k)))
		if _, exists := canonical[ck]; !exists {
			canonical[ck] = v
		}
	}
	return canonical
}

func firstFloat(canonical map[string]interface{}, keys []string) (float64, bool) {
	for _, key := range keys {
		if v, ok := canonical[key]; ok {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
