package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error shape every storefront endpoint returns, so the Nuxt
// client can switch on a stable code.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v with the given status. Encoding failures are ignored; the
// header is already committed by then.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError wraps ErrorBody under an "error" key, the layout callers of the
// checkout and mail endpoints expect.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
