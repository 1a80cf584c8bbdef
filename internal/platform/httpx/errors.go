package httpx

import (
	"errors"
	"net/http"

	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// The core assigns no transport codes itself; this is the single place
// where failure kinds become status codes.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrInvalidReference):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:      "Invalid Reference",
			Status:     http.StatusBadRequest,
			Detail:     err.Error(),
			InvalidIDs: shared.InvalidIDs(err),
		})
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Invalid Credentials", "email or password is incorrect")
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "missing required permission")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
