package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/execution"
	"github.com/mohammadumar-dev/resumeagent/internal/generation"
	"github.com/mohammadumar-dev/resumeagent/internal/quota"
)

// QuotaExceededMessage is shown to users who have used up their monthly allowance.
const QuotaExceededMessage = "Monthly resume generation limit reached. Upgrade your plan to continue."

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var verr *ErrValidation
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generation.ErrGenerationTerminal):
		return http.StatusConflict
	case errors.Is(err, execution.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, execution.ErrFatal):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ErrorMessage returns the client-facing text for err. Internal failures are not described.
func ErrorMessage(err error) string {
	switch HTTPStatus(err) {
	case http.StatusPaymentRequired:
		return QuotaExceededMessage
	case http.StatusNotFound:
		return "Not found"
	case http.StatusServiceUnavailable:
		return "Resume generation is temporarily unavailable. Submit again to continue where it stopped."
	case http.StatusInternalServerError:
		return "Internal server error"
	default:
		return err.Error()
	}
}
