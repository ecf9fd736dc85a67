package extract

import (
	"fmt"
	"strconv"
	"strings"
)

const missing = "N/A"

// Summary renders the one-line synopsis of a field set.
func Summary(fs FieldSet) string {
	return fmt.Sprintf("Invoice %s dated %s from %s to %s: %d line items, total %s %s",
		scalar(fs.Header[KeyInvoiceNumber]),
		scalar(fs.Header[KeyInvoiceDate]),
		partyName(fs.Header[KeySeller]),
		partyName(fs.Header[KeyBuyer]),
		len(fs.LineItems),
		scalar(fs.Header[KeyTotalAmount]),
		scalar(fs.Header[KeyTotalCurrency]),
	)
}

func partyName(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return scalar(t["name"])
	default:
		return scalar(v)
	}
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return missing
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return s
		}
		return missing
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		return missing
	}
	return fmt.Sprint(v)
}
