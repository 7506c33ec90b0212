package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/avasquez/spendscan/internal/receipt"
	"github.com/avasquez/spendscan/internal/scanning"
)

const maxUploadSize = int64(50 << 20) // high-resolution phone photos

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// handleListReceipts returns the full collection, newest first
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(receipts); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// scanRequest is the JSON upload body, for clients that send base64 images
// instead of multipart forms.
type scanRequest struct {
	Image       string `json:"image"` // base64-encoded image bytes
	ContentType string `json:"content_type"`
}

// handleScanReceipt accepts a receipt image, runs extraction and saves the
// result. The image arrives either as a multipart "file" field or as a JSON
// body with a base64 payload.
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	var data []byte
	var contentType string
	var err error

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		data, contentType, err = readMultipartImage(r)
	} else {
		data, contentType, err = readJSONImage(r)
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := s.service.ScanReceipt(r.Context(), data, contentType)
	if err != nil {
		slog.Error("Error scanning receipt", "error", err)
		switch {
		case errors.Is(err, scanning.ErrExtractionFormat):
			jsonError(w, "The model reply contained no readable receipt data. Please try again.", http.StatusUnprocessableEntity)
		case errors.Is(err, scanning.ErrExtractionService):
			jsonError(w, "The extraction service is unavailable. Please try again.", http.StatusBadGateway)
		case errors.Is(err, receipt.ErrStorageWrite):
			jsonError(w, "The receipt was extracted but could not be saved.", http.StatusInternalServerError)
		default:
			jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func readMultipartImage(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		if err.Error() == "http: request body too large" {
			return nil, "", errors.New("file is too large, maximum size is 50MB")
		}
		return nil, "", errors.New("error parsing form")
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errors.New("no file was provided")
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		return nil, "", errors.New("file is too large, maximum size is 50MB")
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", errors.New("error reading file")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFromExt(header.Filename)
	}
	return data, strings.ToLower(strings.TrimSpace(contentType)), nil
}

func readJSONImage(r *http.Request) ([]byte, string, error) {
	var req scanRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&req); err != nil {
		return nil, "", errors.New("invalid request body")
	}
	if req.Image == "" {
		return nil, "", errors.New("no image was provided")
	}
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return nil, "", errors.New("image is not valid base64")
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, strings.ToLower(strings.TrimSpace(contentType)), nil
}

func contentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleDeleteReceipt deletes a receipt. Deleting an unknown ID still
// returns 204: the operation is idempotent.
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	if err := s.service.DeleteReceipt(id); err != nil {
		slog.Error("Error deleting receipt", "id", id, "error", err)
		corsError(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMonthlySummary returns the aggregate for ?month=YYYY-MM, defaulting
// to the current calendar month.
func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	ref := time.Now()
	if month := r.URL.Query().Get("month"); month != "" {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			corsError(w, "month must be in YYYY-MM form", http.StatusBadRequest)
			return
		}
		ref = parsed
	}

	aggregate, err := s.service.MonthlySummary(ref)
	if err != nil {
		slog.Error("Error computing monthly summary", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(aggregate); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleExport returns the whole collection as an XLSX workbook
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportXLSX()
	if err != nil {
		slog.Error("Error exporting receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.xlsx"`)
	w.Write(data)
}
