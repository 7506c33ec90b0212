package scanning

import (
	"context"
	"errors"
)

// Fields contains the extracted receipt fields after exit-boundary coercion:
// amounts are non-negative numbers (0 when absent or unparsable), Date is
// YYYY-MM-DD or "N/A", Category is a member of the closed category set.
type Fields struct {
	VendorName  string  `json:"vendor_name"`
	TotalAmount float64 `json:"total_amount"`
	Tax         float64 `json:"tax"`
	Date        string  `json:"date"`
	Category    string  `json:"category"`
}

// Extraction errors. Callers dispatch on these with errors.Is.
var (
	// ErrExtractionService means the call to the external model itself
	// failed (network, auth, quota, empty reply).
	ErrExtractionService = errors.New("extraction service failed")
	// ErrExtractionFormat means the model replied but its text contained no
	// parsable JSON object.
	ErrExtractionFormat = errors.New("no parsable JSON object in extraction reply")
)

// Scanner extracts structured fields from a receipt image. One call per scan,
// no retries; ctx carries the caller's timeout or cancellation.
type Scanner interface {
	ExtractReceipt(ctx context.Context, imageData []byte, contentType string) (*Fields, error)
	// Close releases client resources.
	Close() error
}
