package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/xuri/excelize/v2"

	"github.com/avasquez/spendscan/internal/receipt"
	"github.com/avasquez/spendscan/internal/scanning"
	"github.com/avasquez/spendscan/internal/summary"
)

var _ = Describe("Server", func() {
	var (
		store       *mockStore
		scanner     *mockScanner
		service     *Service
		srv         *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		store = newMockStore()
		scanner = newMockScanner()
		service = NewService(store, scanner)
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		srv = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(srv.ServeHTTP, srv.ServeHTTP, srv.ServeHTTP, srv.ServeHTTP)
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	multipartBody := func() (*bytes.Buffer, string) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "receipt.jpg")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte("fake image bytes"))
		Expect(err).NotTo(HaveOccurred())
		Expect(mw.Close()).To(Succeed())
		return &body, mw.FormDataContentType()
	}

	Describe("GET /api/receipts", func() {
		When("receipts exist", func() {
			BeforeEach(func() {
				_, err := store.Save(receipt.Draft{VendorName: "Acme", TotalAmount: 12.5, Date: "2024-03-15", Category: "Groceries"})
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return them as JSON", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var receipts []receipt.Receipt
				Expect(json.NewDecoder(resp.Body).Decode(&receipts)).To(Succeed())
				Expect(receipts).To(HaveLen(1))
				Expect(receipts[0].VendorName).To(Equal("Acme"))
			})
		})

		When("the store read fails", func() {
			BeforeEach(func() {
				store.listErr = fmt.Errorf("%w: corrupt blob", receipt.ErrStorageRead)
			})

			It("should return 500", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("POST /api/receipts", func() {
		When("uploading a multipart image", func() {
			It("should scan and persist the receipt", func() {
				body, contentType := multipartBody()
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var rec receipt.Receipt
				Expect(json.NewDecoder(resp.Body).Decode(&rec)).To(Succeed())
				Expect(rec.VendorName).To(Equal("Acme"))
				Expect(store.receipts).To(HaveLen(1))
			})
		})

		When("uploading a base64 JSON body", func() {
			It("should scan and persist the receipt", func() {
				payload, err := json.Marshal(map[string]string{
					"image":        base64.StdEncoding.EncodeToString([]byte("fake image bytes")),
					"content_type": "image/jpeg",
				})
				Expect(err).NotTo(HaveOccurred())

				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", "application/json", bytes.NewReader(payload))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(store.receipts).To(HaveLen(1))
			})
		})

		When("the JSON body is not base64", func() {
			It("should return 400", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", "application/json",
					strings.NewReader(`{"image":"not base64!!","content_type":"image/jpeg"}`))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("no file is provided", func() {
			It("should return 400", func() {
				var body bytes.Buffer
				mw := multipart.NewWriter(&body)
				Expect(mw.Close()).To(Succeed())

				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", mw.FormDataContentType(), &body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the extraction service fails", func() {
			BeforeEach(func() {
				scanner.scanErr = fmt.Errorf("%w: timeout", scanning.ErrExtractionService)
			})

			It("should return 502", func() {
				body, contentType := multipartBody()
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			})
		})

		When("the model reply is unreadable", func() {
			BeforeEach(func() {
				scanner.scanErr = scanning.ErrExtractionFormat
			})

			It("should return 422", func() {
				body, contentType := multipartBody()
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("the store write fails", func() {
			BeforeEach(func() {
				store.saveErr = fmt.Errorf("%w: disk full", receipt.ErrStorageWrite)
			})

			It("should return 500", func() {
				body, contentType := multipartBody()
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("DELETE /api/receipts/{id}", func() {
		var id string

		BeforeEach(func() {
			saved, err := store.Save(receipt.Draft{VendorName: "Acme"})
			Expect(err).NotTo(HaveOccurred())
			id = saved.ID
		})

		It("should delete the receipt and return 204", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/receipts/"+id, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(store.receipts).To(BeEmpty())
		})

		It("should return 204 for an unknown id too", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/receipts/no-such-id", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(store.receipts).To(HaveLen(1))
		})
	})

	Describe("GET /api/summary", func() {
		BeforeEach(func() {
			_, err := store.Save(receipt.Draft{Date: "2024-03-01", TotalAmount: 10, Category: "Groceries"})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Save(receipt.Draft{Date: "2024-02-01", TotalAmount: 100, Category: "Other"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should aggregate the requested month", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/summary?month=2024-03")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var aggregate summary.MonthlyAggregate
			Expect(json.NewDecoder(resp.Body).Decode(&aggregate)).To(Succeed())
			Expect(aggregate.Month).To(Equal("2024-03"))
			Expect(aggregate.Total).To(Equal(10.0))
			Expect(aggregate.Categories).To(HaveLen(1))
			Expect(aggregate.Categories[0].PercentageOfTotal).To(Equal(100.0))
		})

		It("should reject a malformed month", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/summary?month=March")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/export", func() {
		BeforeEach(func() {
			_, err := store.Save(receipt.Draft{VendorName: "Acme", TotalAmount: 12.5, Date: "2024-03-15", Category: "Groceries"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return a readable workbook", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/export")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("receipts.xlsx"))

			f, err := excelize.OpenReader(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()

			vendor, err := f.GetCellValue("Receipts", "B2")
			Expect(err).NotTo(HaveOccurred())
			Expect(vendor).To(Equal("Acme"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept correct credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "pass")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})
})
