package extract

import (
	"fmt"
	"strings"
)

// HeaderPrompt asks for every header key and nothing else.
func HeaderPrompt(docType string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are reading the first page of a %s.\n", docTypeOrDefault(docType))
	b.WriteString("Extract the document header and return ONLY a JSON object with these keys:\n")
	b.WriteString(`- invoice_number (string)
- invoice_date (string, YYYY-MM-DD when possible)
- po_number (string)
- buyer (object: name, address, tax_id)
- seller (object: name, address, tax_id)
- subtotal (number)
- tax_amount (number)
- total_amount (number)
- total_currency (ISO 4217 code)
`)
	b.WriteString("Use null for anything not printed on the page. Do not include line items.")
	return b.String()
}

// LineItemsPrompt asks for the table rows of one page.
func LineItemsPrompt(docType string, page, pages int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are reading page %d of %d of a %s.\n", page, pages, docTypeOrDefault(docType))
	b.WriteString("Extract every line item row printed on THIS page only and return ONLY a JSON object of the form\n")
	b.WriteString(`{"line_items": [{"code": string, "description": string, "quantity": number, "unit_price": number, "amount": number}]}`)
	b.WriteString("\nReturn an empty array when the page has no line items. Do not repeat rows from other pages.")
	return b.String()
}

func docTypeOrDefault(docType string) string {
	if docType == "" {
		return "document"
	}
	return docType
}
