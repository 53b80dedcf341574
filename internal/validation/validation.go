package validation

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the only accepted date format for path parameters.
const DateLayout = "2006-01-02"

// ErrDateEmpty is returned when a date parameter is empty or whitespace-only.
var ErrDateEmpty = errors.New("date is required")

// ErrDateFormat is returned when a date parameter is not a YYYY-MM-DD calendar date.
var ErrDateFormat = errors.New("date must be YYYY-MM-DD")

// validate caches struct metadata; one instance is shared process-wide.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateDate trims input and checks it is a real calendar date in YYYY-MM-DD form.
// Returns the trimmed string or an error suitable for 400 INVALID_DATE responses.
func ValidateDate(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrDateEmpty
	}
	if err := validate.Var(s, "datetime="+DateLayout); err != nil {
		return "", ErrDateFormat
	}
	return s, nil
}

// Struct validates v against its `validate` struct tags.
func Struct(v any) error {
	return validate.Struct(v)
}
