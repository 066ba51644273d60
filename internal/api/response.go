package api

import (
	"encoding/json"
	"net/http"

	"github.com/prudhvinik1/tenantsync/internal/syncerr"
)

type errorResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Code    syncerr.Code `json:"code"`
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeError writes the failure envelope, with the status derived from the
// error's classification.
func writeError(w http.ResponseWriter, err error) {
	code := syncerr.CodeOf(err)
	writeJSON(w, errorResponse{Success: false, Error: err.Error(), Code: code}, syncerr.HTTPStatus(code))
}
