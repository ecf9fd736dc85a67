package extract

import "math"

// scoredKeys are the header keys checked by Confidence. The line-items check
// is the extra one.
var scoredKeys = []string{
	KeyInvoiceNumber,
	KeyInvoiceDate,
	KeyTotalAmount,
	KeyTotalCurrency,
	KeyBuyer,
	KeySeller,
}

// Confidence is the fraction of presence checks satisfied, clamped to [0,1]
// and rounded to two decimals.
func Confidence(fs FieldSet) float64 {
	total := len(scoredKeys) + 1
	hit := 0
	for _, k := range scoredKeys {
		if Present(fs.Header[k]) {
			hit++
		}
	}
	if len(fs.LineItems) > 0 {
		hit++
	}
	c := float64(hit) / float64(total)
	c = math.Max(0, math.Min(1, c))
	return math.Round(c*100) / 100
}

// Present reports whether a field value counts as filled: non-nil and not the
// empty string. Objects count when any nested value is filled.
func Present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case map[string]any:
		for _, sub := range t {
			if Present(sub) {
				return true
			}
		}
		return false
	case LineItem:
		return Present(map[string]any(t))
	case []any:
		return len(t) > 0
	}
	return true
}
