package receipt

import (
	"strings"
	"time"
)

// Receipt represents one scanned transaction. The JSON field names are the
// persisted wire format; they must not change without migrating stored data.
type Receipt struct {
	ID          string    `json:"id"`
	VendorName  string    `json:"vendor_name"`
	TotalAmount float64   `json:"total_amount"`
	Tax         float64   `json:"tax"`
	Date        string    `json:"date"` // YYYY-MM-DD, or "N/A" when unknown
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Draft is an unpersisted candidate Receipt. The store assigns ID and
// CreatedAt when it is saved.
type Draft struct {
	VendorName  string
	TotalAmount float64
	Tax         float64
	Date        string
	Category    string
}

// Category values form a closed set; anything else folds into CategoryOther.
const (
	CategoryFoodAndDrinks  = "Food & Drinks"
	CategoryGroceries      = "Groceries"
	CategoryTransportation = "Transportation"
	CategoryEntertainment  = "Entertainment"
	CategoryShopping       = "Shopping"
	CategoryOther          = "Other"
)

var allCategories = []string{
	CategoryFoodAndDrinks,
	CategoryGroceries,
	CategoryTransportation,
	CategoryEntertainment,
	CategoryShopping,
	CategoryOther,
}

// Categories returns the closed category set in canonical order.
func Categories() []string {
	out := make([]string, len(allCategories))
	copy(out, allCategories)
	return out
}

// CanonicalCategory folds input onto the closed category set. Blank or
// unrecognized input returns CategoryOther. Matching is case-insensitive but
// exact; fuzzy synonym mapping happens once, at the extraction boundary.
func CanonicalCategory(input string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return CategoryOther
	}
	for _, c := range allCategories {
		if strings.ToLower(c) == normalized {
			return c
		}
	}
	return CategoryOther
}
