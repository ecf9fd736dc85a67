package extract

import (
	"encoding/json"
	"testing"
)

func TestMerge_HeaderOwnsNonLineItemKeys(t *testing.T) {
	header := map[string]any{
		KeyInvoiceNumber: "INV-1",
		KeyLineItems:     []any{map[string]any{"code": "stray"}},
	}
	items := []LineItem{{"code": "A"}, {"code": "B"}}

	fs := Merge(header, items)
	if _, ok := fs.Header[KeyLineItems]; ok {
		t.Error("header must not carry line_items after merge")
	}
	if fs.Header[KeyInvoiceNumber] != "INV-1" {
		t.Errorf("header value lost: %v", fs.Header)
	}
	if len(fs.LineItems) != 2 || fs.LineItems[0]["code"] != "A" || fs.LineItems[1]["code"] != "B" {
		t.Errorf("line items not kept in order: %v", fs.LineItems)
	}
}

func TestMerge_Deterministic(t *testing.T) {
	page1 := []LineItem{{"code": "1a"}, {"code": "1b"}}
	page2 := []LineItem{{"code": "2a"}}
	concat := func() []LineItem { return append(append([]LineItem{}, page1...), page2...) }

	a := Merge(nil, concat())
	b := Merge(nil, concat())
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Errorf("merge not deterministic:\n%s\n%s", ja, jb)
	}
}

func TestFieldSet_JSONRoundTrip(t *testing.T) {
	fs := Merge(map[string]any{KeyInvoiceNumber: "INV-9"}, nil)
	data, err := json.Marshal(fs)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"invoice_number":"INV-9","line_items":[]}` {
		t.Errorf("unexpected json %s", data)
	}

	var back FieldSet
	if err := json.Unmarshal([]byte(`{"invoice_number":"X","line_items":[{"code":"A"},"junk"]}`), &back); err != nil {
		t.Fatal(err)
	}
	if back.Header[KeyInvoiceNumber] != "X" || len(back.LineItems) != 1 {
		t.Errorf("unexpected decode %+v", back)
	}
}

func TestLineItemsFrom(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    int
	}{
		{"missing", map[string]any{}, 0},
		{"wrong type", map[string]any{KeyLineItems: "none"}, 0},
		{"mixed", map[string]any{KeyLineItems: []any{map[string]any{}, 3, map[string]any{"a": 1}}}, 2},
	}
	for _, tt := range tests {
		if got := len(LineItemsFrom(tt.payload)); got != tt.want {
			t.Errorf("%s: got %d items, want %d", tt.name, got, tt.want)
		}
	}
}
