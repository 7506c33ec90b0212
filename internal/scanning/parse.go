package scanning

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractPrompt is the fixed instruction shared by all model providers. The
// key names must match the persisted wire format exactly.
const extractPrompt = `Analyze this receipt image and extract the following information in JSON format only:
- vendor_name: The store/restaurant name
- total_amount: The total amount paid (numbers only, no currency symbols)
- tax: The tax amount (numbers only)
- date: The transaction date in YYYY-MM-DD format
- category: Categorize as "Food & Drinks", "Groceries", "Transportation", "Entertainment", "Shopping", or "Other"

Return ONLY valid JSON with these exact keys. If a field is not found, use "N/A" for strings or "0" for numbers.`

// fieldsSchema is deliberately lenient on value types: models return amounts
// as numbers or numeric strings and "N/A"/null for missing fields, all of
// which the coercion pass below absorbs. It rejects replies whose object has
// the wrong shape entirely (arrays, objects in scalar slots).
const fieldsSchema = `{
	"type": "object",
	"properties": {
		"vendor_name":  {"type": ["string", "null"]},
		"total_amount": {"type": ["string", "number", "null"]},
		"tax":          {"type": ["string", "number", "null"]},
		"date":         {"type": ["string", "null"]},
		"category":     {"type": ["string", "null"]}
	}
}`

var compiledFieldsSchema = jsonschema.MustCompileString("fields.json", fieldsSchema)

// categorySynonyms maps common model spellings onto the closed set used in
// the prompt. Applied only here, at the extraction exit boundary.
var categorySynonyms = map[string]string{
	"food":            "Food & Drinks",
	"food & drink":    "Food & Drinks",
	"food and drinks": "Food & Drinks",
	"restaurant":      "Food & Drinks",
	"dining":          "Food & Drinks",
	"grocery":         "Groceries",
	"supermarket":     "Groceries",
	"transport":       "Transportation",
	"travel":          "Transportation",
	"gas":             "Transportation",
	"fuel":            "Transportation",
	"parking":         "Transportation",
	"movies":          "Entertainment",
	"retail":          "Shopping",
	"clothing":        "Shopping",
}

var promptCategories = []string{
	"Food & Drinks", "Groceries", "Transportation", "Entertainment", "Shopping", "Other",
}

// parseFields turns a model's free-form text reply into coerced Fields.
// The reply may wrap the JSON object in prose or markdown code fences.
func parseFields(text string) (*Fields, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	object, ok := firstJSONObject(text)
	if !ok {
		return nil, ErrExtractionFormat
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(object), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFormat, err)
	}
	if err := compiledFieldsSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFormat, err)
	}

	return &Fields{
		VendorName:  coerceVendor(raw["vendor_name"]),
		TotalAmount: coerceAmount(raw["total_amount"]),
		Tax:         coerceAmount(raw["tax"]),
		Date:        coerceDate(raw["date"]),
		Category:    coerceCategory(raw["category"]),
	}, nil
}

// firstJSONObject returns the first balanced {...} substring of text. Brace
// depth is tracked outside JSON strings so prose after the object (which may
// itself contain braces) is never swallowed.
func firstJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func coerceVendor(v any) string {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return "N/A"
	}
	return s
}

// coerceAmount accepts numbers or numeric strings ("12.50", "$1,234.00") and
// falls back to 0 for anything absent, negative or unparsable.
func coerceAmount(v any) float64 {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return 0
		}
		return t
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 {
			return 0
		}
		return f
	default:
		return 0
	}
}

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"Jan 2, 2006",
}

// coerceDate normalizes recognized formats to YYYY-MM-DD and returns "N/A"
// otherwise. It never substitutes today's date: an undated receipt must not
// be counted into the current month's aggregate.
func coerceDate(v any) string {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "n/a") {
		return "N/A"
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return "N/A"
}

func coerceCategory(v any) string {
	s, _ := v.(string)
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "" {
		return "Other"
	}
	for _, c := range promptCategories {
		if strings.ToLower(c) == normalized {
			return c
		}
	}
	if c, ok := categorySynonyms[normalized]; ok {
		return c
	}
	return "Other"
}
