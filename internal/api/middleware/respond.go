package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hugh/voxpopulous/internal/api/dto"
)

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Error: message, Code: code, Details: details})
}
