package vision

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"casa/internal/core"
)

//go:embed receipt.schema.json
var receiptSchemaJSON string

const receiptSchemaURL = "https://casa.local/schemas/receipt.schema.json"

// ReceiptValidator checks model output against the receipt JSON Schema before it is decoded.
type ReceiptValidator struct {
	schema *jsonschema.Schema
}

func NewReceiptValidator() (*ReceiptValidator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(receiptSchemaURL, strings.NewReader(receiptSchemaJSON)); err != nil {
		return nil, fmt.Errorf("receipt schema load failed: %w", err)
	}
	schema, err := c.Compile(receiptSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("receipt schema compile failed: %w", err)
	}
	return &ReceiptValidator{schema: schema}, nil
}

// Decode validates raw and converts it to receipt data with exact decimal amounts.
func (v *ReceiptValidator) Decode(raw []byte) (core.ReceiptData, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return core.ReceiptData{}, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return core.ReceiptData{}, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	var rd core.ReceiptData
	if err := json.Unmarshal(raw, &rd); err != nil {
		return core.ReceiptData{}, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	return rd, nil
}

// extractJSON returns the outermost JSON object in text, tolerating markdown fences around it.
func extractJSON(text string) ([]byte, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return []byte(text[start : end+1]), true
}
