package extract

import "testing"

func TestConfidence_PartialHeader(t *testing.T) {
	fs := Merge(map[string]any{
		KeyInvoiceNumber: "INV-1",
		KeyInvoiceDate:   "2024-01-01",
		KeyTotalAmount:   100.0,
		KeyTotalCurrency: "USD",
		KeyBuyer:         map[string]any{"name": "B"},
		KeySeller:        map[string]any{},
	}, []LineItem{{"description": "widget"}})

	if got := Confidence(fs); got != 0.86 {
		t.Errorf("Confidence = %v, want 0.86", got)
	}
}

func TestConfidence_Bounds(t *testing.T) {
	if got := Confidence(FieldSet{}); got != 0 {
		t.Errorf("empty field set: got %v, want 0", got)
	}
	full := Merge(map[string]any{
		KeyInvoiceNumber: "INV-1",
		KeyInvoiceDate:   "2024-01-01",
		KeyTotalAmount:   0,
		KeyTotalCurrency: "EUR",
		KeyBuyer:         "Buyer GmbH",
		KeySeller:        map[string]any{"address": map[string]any{"city": "Berlin"}},
	}, []LineItem{{}})
	if got := Confidence(full); got != 1 {
		t.Errorf("full field set: got %v, want 1", got)
	}
}

func TestConfidence_Monotonic(t *testing.T) {
	header := map[string]any{}
	var items []LineItem
	prev := Confidence(Merge(header, items))

	steps := []func(){
		func() { header[KeySeller] = map[string]any{"name": ""} },
		func() { header[KeyInvoiceNumber] = "INV-1" },
		func() { items = append(items, LineItem{"code": "A"}) },
		func() { header[KeySeller] = map[string]any{"name": "S"} },
		func() { header[KeyTotalCurrency] = "  " },
		func() { header[KeyTotalCurrency] = "USD" },
		func() { header[KeyBuyer] = map[string]any{"name": "B"} },
		func() { header[KeyInvoiceDate] = "2024-01-01" },
		func() { header[KeyTotalAmount] = 10.5 },
	}
	for i, step := range steps {
		step()
		c := Confidence(Merge(header, items))
		if c < prev {
			t.Errorf("step %d: confidence dropped from %v to %v", i, prev, c)
		}
		if c < 0 || c > 1 {
			t.Errorf("step %d: confidence %v out of range", i, c)
		}
		prev = c
	}
	if prev != 1 {
		t.Errorf("expected confidence 1 after filling everything, got %v", prev)
	}
}

func TestPresent(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{"", false},
		{"   ", true},
		{"x", true},
		{0, true},
		{false, true},
		{map[string]any{}, false},
		{map[string]any{"name": nil, "tax_id": ""}, false},
		{map[string]any{"name": "", "tax_id": "DE1"}, true},
		{map[string]any{"address": map[string]any{"city": ""}}, false},
		{[]any{}, false},
		{[]any{"a"}, true},
	}
	for _, tt := range tests {
		if got := Present(tt.v); got != tt.want {
			t.Errorf("Present(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
