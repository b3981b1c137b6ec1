package fridge

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"fridges/internal/scanning"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// fridgeSummary is the list-endpoint view of a document
type fridgeSummary struct {
	UID        string  `json:"uid"`
	ItemCount  int     `json:"item_count"`
	TotalValue float64 `json:"total_value"`
}

// handleScan accepts a receipt upload and reconciles it into the fridge
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if uid == "" {
		corsError(w, "Fridge UID required", http.StatusBadRequest)
		return
	}

	// Parse multipart form (max 50MB to handle high-resolution phone photos)
	maxFormSize := int64(50 << 20) // 50MB
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if err.Error() == "http: no such file" {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		jsonError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	// Determine content type, falling back to the filename extension
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = scanning.MIMETypeForFile(header.Filename)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	dryRun, _ := strconv.ParseBool(r.FormValue("dry_run"))

	result, err := s.service.Scan(r.Context(), uid, data, contentType, dryRun)
	if err != nil {
		s.metrics.ScanFailures.Inc()
		if errors.Is(err, ErrNoValidItems) && result != nil {
			s.metrics.ItemsRejected.Add(float64(len(result.Rejected)))
			setCORSHeaders(w)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]any{
				"error":    err.Error(),
				"rejected": result.Rejected,
			})
			return
		}
		slog.Error("Error scanning receipt", "uid", uid, "filename", header.Filename, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.metrics.Scans.Inc()
	s.metrics.ItemsAdded.Add(float64(len(result.Summary.Added)))
	s.metrics.ItemsUpdated.Add(float64(len(result.Summary.Updated)))
	s.metrics.ItemsRejected.Add(float64(len(result.Rejected)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetFridge returns a single fridge document
func (s *Server) handleGetFridge(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if uid == "" {
		corsError(w, "Fridge UID required", http.StatusBadRequest)
		return
	}

	doc, err := s.service.Contents(r.Context(), uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Fridge not found", http.StatusNotFound)
			return
		}
		slog.Error("Error loading fridge", "uid", uid, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleListFridges returns a summary of every stored fridge
func (s *Server) handleListFridges(w http.ResponseWriter, r *http.Request) {
	docs, err := s.service.ListFridges(r.Context())
	if err != nil {
		slog.Error("Error listing fridges", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	summaries := make([]fridgeSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, fridgeSummary{
			UID:        doc.UID,
			ItemCount:  len(doc.Items),
			TotalValue: doc.TotalValue(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleRecipes returns recipe suggestions for a fridge
func (s *Server) handleRecipes(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if uid == "" {
		corsError(w, "Fridge UID required", http.StatusBadRequest)
		return
	}

	recipes, err := s.service.SuggestRecipes(r.Context(), uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Fridge not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrEmptyFridge) {
			jsonError(w, "Fridge is empty", http.StatusConflict)
			return
		}
		slog.Error("Error generating recipes", "uid", uid, "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"uid":     uid,
		"recipes": recipes,
	}); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}
