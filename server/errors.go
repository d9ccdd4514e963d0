package server

import (
	"net/http"

	"github.com/Rival420/donwatcher/errors"
)

// writeDomainError maps the failure taxonomy onto HTTP statuses. Stale
// results are deliberately not errors on the wire: the agent already did the
// work, tell it everything is fine.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
