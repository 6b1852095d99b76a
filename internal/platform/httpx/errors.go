package httpx

import (
	"errors"
	"net/http"

	"github.com/atelier-ai/atelier/internal/permission"
	"github.com/atelier-ai/atelier/internal/shared"
)

// RespondError maps engine errors to HTTP responses using RFC7807.
// Forbidden and not-found resources both report "Not Found": whether a
// resource exists but is inaccessible is never revealed.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrForbidden),
		errors.Is(err, permission.ErrResourceNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, permission.ErrPrincipalResolution),
		errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, permission.ErrNotFolder),
		errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
