// Package extract holds the invoice field model and everything derived from
// it: merging, scoring, summaries, prompts, payload validation and the
// local degraded extractor.
package extract

import (
	"encoding/json"
	"sort"
)

// Header keys understood by scoring and summaries.
const (
	KeyInvoiceNumber = "invoice_number"
	KeyInvoiceDate   = "invoice_date"
	KeyPONumber      = "po_number"
	KeyBuyer         = "buyer"
	KeySeller        = "seller"
	KeySubtotal      = "subtotal"
	KeyTaxAmount     = "tax_amount"
	KeyTotalAmount   = "total_amount"
	KeyTotalCurrency = "total_currency"
	KeyLineItems     = "line_items"
)

// LineItem is one row of the invoice table: code, description, quantity,
// unit_price and amount, plus whatever else the backend returned.
type LineItem map[string]any

// FieldSet is the working record of one document. Header and LineItems are
// written by different subtasks and never overlap.
type FieldSet struct {
	Header    map[string]any
	LineItems []LineItem
}

// Merge combines a header and the concatenated line items. The header owns
// every key except line_items; line items are taken verbatim in order.
func Merge(header map[string]any, items []LineItem) FieldSet {
	h := make(map[string]any, len(header))
	for k, v := range header {
		if k == KeyLineItems {
			continue
		}
		h[k] = v
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return FieldSet{Header: h, LineItems: out}
}

// MarshalJSON flattens the header and adds line_items.
func (fs FieldSet) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(fs.Header)+1)
	for k, v := range fs.Header {
		m[k] = v
	}
	items := fs.LineItems
	if items == nil {
		items = []LineItem{}
	}
	m[KeyLineItems] = items
	return json.Marshal(m)
}

func (fs *FieldSet) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*fs = FieldSet{Header: map[string]any{}, LineItems: LineItemsFrom(m)}
	for k, v := range m {
		if k != KeyLineItems {
			fs.Header[k] = v
		}
	}
	return nil
}

// LineItemsFrom reads the line_items array of a backend payload. Entries
// that are not objects are skipped.
func LineItemsFrom(payload map[string]any) []LineItem {
	raw, ok := payload[KeyLineItems].([]any)
	if !ok {
		return nil
	}
	out := make([]LineItem, 0, len(raw))
	for _, r := range raw {
		if obj, ok := r.(map[string]any); ok {
			out = append(out, LineItem(obj))
		}
	}
	return out
}

// HeaderFrom strips line_items from a backend payload.
func HeaderFrom(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != KeyLineItems {
			out[k] = v
		}
	}
	return out
}

// Keys returns the header keys in sorted order.
func (fs FieldSet) Keys() []string {
	keys := make([]string, 0, len(fs.Header))
	for k := range fs.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
