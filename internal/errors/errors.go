package gerr

import (
	"fmt"
	"net/http"
)

// ParameterError is returned when report parameters are missing or violate a
// precondition. It carries a stable code for API clients.
type ParameterError struct {
	Code    string
	Message string
	Status  int
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewParameterError returns a bad request ParameterError.
func NewParameterError(code, message string) *ParameterError {
	return &ParameterError{
		Code:    code,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

var (
	ErrInvalidSegmentingVariation = NewParameterError(
		"wc_admin_reports_invalid_segmenting_variation",
		"product_includes parameter need to specify exactly one product when segmenting by variation.",
	)
	ErrInvalidParam = NewParameterError("rest_invalid_param", "invalid parameter(s)")
)
