package bill

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
)

// maxUploadSize caps receipt uploads; phone photos stay well under it
const maxUploadSize = int64(20 << 20)

// CreateResponse is the body returned when a receipt upload creates a draft
type CreateResponse struct {
	FileURL string `json:"fileUrl"`
	Key     string `json:"key"`
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes {"error": message} with the given status
func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeServiceError maps service errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		jsonError(w, "Bill not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidFile), errors.Is(err, ErrInvalidStatus):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleListBills returns all bills, optionally only those of ?email=
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.service.ListBills(r.Context())
	if err != nil {
		slog.Error("Error listing bills", "error", err)
		writeServiceError(w, err)
		return
	}

	if email := r.URL.Query().Get("email"); email != "" {
		owned := make([]*Bill, 0, len(bills))
		for _, b := range bills {
			if b.Email == email {
				owned = append(owned, b)
			}
		}
		bills = owned
	}

	writeJSON(w, http.StatusOK, bills)
}

// handleCreateBill stores an uploaded receipt and creates the draft bill. A
// JSON body creates a bill without a receipt.
func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		s.handleCreateBillJSON(w, r)
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "File is too large. Maximum size is 20MB.", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	email := r.FormValue("email")
	bill, err := s.service.CreateWithFile(r.Context(), email, header.Filename, data, header.Header.Get("Content-Type"))
	if err != nil {
		slog.Error("Error creating bill", "filename", header.Filename, "email", email, "error", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateResponse{FileURL: bill.FileURL, Key: bill.ID})
}

func (s *Server) handleCreateBillJSON(w http.ResponseWriter, r *http.Request) {
	var b Bill
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	bill, err := s.service.Create(r.Context(), &b)
	if err != nil {
		slog.Error("Error creating bill", "email", b.Email, "error", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bill)
}

// handleUpdateBill applies a JSON bill onto the stored one
func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	var patch Bill
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	bill, err := s.service.Update(r.Context(), id, &patch)
	if err != nil {
		slog.Error("Error updating bill", "id", id, "error", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bill)
}

// handleGetBill returns a single bill
func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.service.GetBill(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

// handleGetBillFile serves the receipt of a bill, or redirects to a presigned link
func (s *Server) handleGetBillFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	link, err := s.service.FileLink(r.Context(), id)
	switch {
	case err == nil:
		http.Redirect(w, r, link, http.StatusTemporaryRedirect)
		return
	case !errors.Is(err, ErrNoPresign):
		writeServiceError(w, err)
		return
	}

	data, contentType, err := s.service.GetBillFile(r.Context(), id)
	if err != nil {
		slog.Error("Error reading receipt", "id", id, "error", err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(data); err != nil {
		slog.Error("Error writing receipt", "id", id, "error", err)
	}
}

// handleDeleteBill deletes a bill
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteBill(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
