package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/toolgate/pkg/api"
)

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteAPIError writes a failed result envelope, deriving the HTTP status
// from the error.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteJSON(w, apiErr.HTTPStatus(), api.Failed(apiErr))
}

// WriteResult writes a result envelope. Failed results use the error's
// status, successful ones 200.
func WriteResult(w http.ResponseWriter, res *api.InvokeResult) {
	status := http.StatusOK
	if !res.Success && res.Error != nil {
		status = res.Error.HTTPStatus()
	}
	WriteJSON(w, status, res)
}
