package httputil

import (
	"log/slog"
	"net/http"

	"github.com/JoshiWorld/bierpongv2/internal/service"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
}

// BadRequest rejects a request that never reached the service layer.
func BadRequest(w http.ResponseWriter, msg string, err error) {
	slog.Warn("bad request", "message", msg, "error", err)
	WriteJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: service.KindValidation.String()})
}

func Unauthorized(w http.ResponseWriter) {
	WriteJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
}

// StatusFor maps a service error kind to its HTTP status.
func StatusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindStateConflict:
		return http.StatusConflict
	case service.KindIntegrity:
		return http.StatusNotFound
	case service.KindMismatch:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// WriteError writes a classified service error. Internal failures are logged
// and replaced by a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	status := StatusFor(kind)

	switch kind {
	case service.KindInternal:
		InternalServerError(w, "request failed: "+r.Method+" "+r.URL.Path, err)
		return
	case service.KindAuthorization:
		slog.Warn("forbidden", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteJSON(w, status, errorBody{Error: service.ErrUnauthorized.Message, Kind: kind.String()})
		return
	}

	slog.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "kind", kind, "error", err)
	WriteJSON(w, status, errorBody{Error: err.Error(), Kind: kind.String()})
}
