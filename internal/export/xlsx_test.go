package export

import (
	"bytes"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/avasquez/spendscan/internal/receipt"
)

func TestExport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Export Suite")
}

var _ = Describe("ReceiptsXLSX", func() {
	var (
		receipts []receipt.Receipt
		data     []byte
		err      error
	)

	JustBeforeEach(func() {
		data, err = ReceiptsXLSX(receipts)
	})

	When("the collection is empty", func() {
		BeforeEach(func() {
			receipts = nil
		})

		It("should still produce a workbook with the header row", func() {
			Expect(err).NotTo(HaveOccurred())

			f, openErr := excelize.OpenReader(bytes.NewReader(data))
			Expect(openErr).NotTo(HaveOccurred())
			defer f.Close()

			rows, rowsErr := f.GetRows(sheetName)
			Expect(rowsErr).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0]).To(Equal(headers))
		})
	})

	When("the collection has receipts", func() {
		BeforeEach(func() {
			receipts = []receipt.Receipt{
				{
					ID:          "b",
					VendorName:  "Corner Cafe",
					TotalAmount: 12.5,
					Tax:         1.0,
					Date:        "2024-03-15",
					Category:    receipt.CategoryFoodAndDrinks,
					CreatedAt:   time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
				},
				{
					ID:          "a",
					VendorName:  "Acme Grocers",
					TotalAmount: 42.0,
					Tax:         3.5,
					Date:        "2024-03-01",
					Category:    receipt.CategoryGroceries,
					CreatedAt:   time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC),
				},
			}
		})

		It("should write one row per receipt in the given order", func() {
			Expect(err).NotTo(HaveOccurred())

			f, openErr := excelize.OpenReader(bytes.NewReader(data))
			Expect(openErr).NotTo(HaveOccurred())
			defer f.Close()

			rows, rowsErr := f.GetRows(sheetName)
			Expect(rowsErr).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(3))
			Expect(rows[1][1]).To(Equal("Corner Cafe"))
			Expect(rows[2][1]).To(Equal("Acme Grocers"))
			Expect(rows[1][3]).To(Equal("12.5"))
			Expect(rows[2][2]).To(Equal(receipt.CategoryGroceries))
		})
	})
})
