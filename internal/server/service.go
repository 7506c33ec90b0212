package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avasquez/spendscan/internal/export"
	"github.com/avasquez/spendscan/internal/receipt"
	"github.com/avasquez/spendscan/internal/scanning"
	"github.com/avasquez/spendscan/internal/summary"
)

// Store is the persistence surface the service needs from the receipt store.
type Store interface {
	Save(draft receipt.Draft) (*receipt.Receipt, error)
	List() ([]receipt.Receipt, error)
	Delete(id string) error
	Version() (uint64, error)
}

// Service composes the receipt store, the extraction client and the summary
// cache behind the operations the API exposes.
type Service struct {
	store   Store
	scanner scanning.Scanner
	cache   *summary.Cache
}

// NewService creates a new Service.
func NewService(store Store, scanner scanning.Scanner) *Service {
	return &Service{
		store:   store,
		scanner: scanner,
		cache:   summary.NewCache(),
	}
}

// ScanReceipt extracts fields from the image and persists the result. The
// extraction client has already coerced numeric and category fields at its
// exit boundary; the store re-folds the category as a second line of defense.
func (s *Service) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*receipt.Receipt, error) {
	fields, err := s.scanner.ExtractReceipt(ctx, imageData, contentType)
	if err != nil {
		slog.Error("Failed to extract receipt fields",
			"content_type", contentType,
			"image_size", len(imageData),
			"error", err,
		)
		return nil, fmt.Errorf("extracting receipt: %w", err)
	}

	rec, err := s.store.Save(receipt.Draft{
		VendorName:  fields.VendorName,
		TotalAmount: fields.TotalAmount,
		Tax:         fields.Tax,
		Date:        fields.Date,
		Category:    fields.Category,
	})
	if err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}
	return rec, nil
}

// ListReceipts returns the full collection, newest first.
func (s *Service) ListReceipts() ([]receipt.Receipt, error) {
	receipts, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt. Deleting an unknown ID is a no-op.
func (s *Service) DeleteReceipt(id string) error {
	if err := s.store.Delete(id); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	return nil
}

// MonthlySummary returns the aggregate for the calendar month of ref. The
// result is cached against the store's version counter, so repeated reads of
// an unchanged collection skip the recomputation and any save or delete
// invalidates the cache by bumping the version.
func (s *Service) MonthlySummary(ref time.Time) (summary.MonthlyAggregate, error) {
	version, err := s.store.Version()
	if err != nil {
		return summary.MonthlyAggregate{}, fmt.Errorf("reading store version: %w", err)
	}

	month := ref.Format("2006-01")
	if aggregate, ok := s.cache.Get(month, version); ok {
		return aggregate, nil
	}

	receipts, err := s.store.List()
	if err != nil {
		return summary.MonthlyAggregate{}, fmt.Errorf("listing receipts: %w", err)
	}

	aggregate := summary.Monthly(receipts, ref)
	s.cache.Put(month, version, aggregate)
	return aggregate, nil
}

// ExportXLSX renders the full collection as an XLSX workbook.
func (s *Service) ExportXLSX() ([]byte, error) {
	receipts, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	data, err := export.ReceiptsXLSX(receipts)
	if err != nil {
		return nil, fmt.Errorf("building workbook: %w", err)
	}
	return data, nil
}
