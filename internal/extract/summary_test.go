package extract

import "testing"

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		fs   FieldSet
		want string
	}{
		{
			name: "complete",
			fs: Merge(map[string]any{
				KeyInvoiceNumber: "INV-1",
				KeyInvoiceDate:   "2024-01-01",
				KeyBuyer:         map[string]any{"name": "Buyer Ltd"},
				KeySeller:        map[string]any{"name": "Seller Inc"},
				KeyTotalAmount:   1250.5,
				KeyTotalCurrency: "USD",
			}, []LineItem{{}, {}}),
			want: "Invoice INV-1 dated 2024-01-01 from Seller Inc to Buyer Ltd: 2 line items, total 1250.5 USD",
		},
		{
			name: "empty",
			fs:   FieldSet{},
			want: "Invoice N/A dated N/A from N/A to N/A: 0 line items, total N/A N/A",
		},
		{
			name: "string parties and blank values",
			fs: Merge(map[string]any{
				KeyInvoiceNumber: " ",
				KeyBuyer:         "Acme",
				KeySeller:        map[string]any{"address": "x"},
				KeyTotalAmount:   100,
			}, nil),
			want: "Invoice N/A dated N/A from N/A to Acme: 0 line items, total 100 N/A",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(tt.fs); got != tt.want {
				t.Errorf("Summary() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}
