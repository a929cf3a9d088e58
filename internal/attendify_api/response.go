package attendify_api

import (
	"encoding/json"
	"net/http"

	"attendify/internal/apperr"
)

type resultResponse struct {
	Result any `json:"result"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func writeResult(w http.ResponseWriter, result any) error {
	return writeJSON(w, http.StatusOK, resultResponse{Result: result})
}

// writeError maps an application error onto the wire: not-found lookups are
// 404, every other kind is a 500 carrying the kind's numeric code.
func writeError(w http.ResponseWriter, err error) error {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	if kind == apperr.KindNotFound {
		status = http.StatusNotFound
	}
	return writeJSON(w, status, errorResponse{Error: kind.Code(), Message: err.Error()})
}
