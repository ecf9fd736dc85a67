package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	nullableText   = map[string]any{"type": []any{"string", "number", "null"}}
	nullableNumber = map[string]any{"type": []any{"number", "string", "null"}}
	party          = map[string]any{"type": []any{"object", "string", "null"}}
)

// HeaderSchema only rejects wrongly typed keys; every key is optional.
func HeaderSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			KeyInvoiceNumber: nullableText,
			KeyInvoiceDate:   nullableText,
			KeyPONumber:      nullableText,
			KeyBuyer:         party,
			KeySeller:        party,
			KeySubtotal:      nullableNumber,
			KeyTaxAmount:     nullableNumber,
			KeyTotalAmount:   nullableNumber,
			KeyTotalCurrency: map[string]any{"type": []any{"string", "null"}},
		},
	}
}

// LineItemsSchema requires a line_items array of objects.
func LineItemsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{KeyLineItems},
		"properties": map[string]any{
			KeyLineItems: map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"code":        nullableText,
						"description": nullableText,
						"quantity":    nullableNumber,
						"unit_price":  nullableNumber,
						"amount":      nullableNumber,
					},
				},
			},
		},
	}
}

// Validator holds compiled payload schemas. It is safe for concurrent use.
type Validator struct {
	header    *jsonschema.Schema
	lineItems *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	h, err := compile("header.json", HeaderSchema())
	if err != nil {
		return nil, err
	}
	li, err := compile("line_items.json", LineItemsSchema())
	if err != nil {
		return nil, err
	}
	return &Validator{header: h, lineItems: li}, nil
}

func compile(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateHeader checks a header payload decoded with encoding/json.
func (v *Validator) ValidateHeader(payload map[string]any) error {
	if err := v.header.Validate(toJSONValue(payload)); err != nil {
		return fmt.Errorf("header does not match schema: %w", err)
	}
	return nil
}

// ValidateLineItems checks a line-items payload decoded with encoding/json.
func (v *Validator) ValidateLineItems(payload map[string]any) error {
	if err := v.lineItems.Validate(toJSONValue(payload)); err != nil {
		return fmt.Errorf("line items do not match schema: %w", err)
	}
	return nil
}

// toJSONValue converts named map/slice types so the validator sees plain
// JSON values.
func toJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, sub := range t {
			out[k] = toJSONValue(sub)
		}
		return out
	case LineItem:
		return toJSONValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, sub := range t {
			out[i] = toJSONValue(sub)
		}
		return out
	case []LineItem:
		out := make([]any, len(t))
		for i, sub := range t {
			out[i] = toJSONValue(sub)
		}
		return out
	case int:
		return float64(t)
	}
	return v
}
