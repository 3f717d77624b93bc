// Package config is the single external validation entrypoint described
// in spec §6: callers populate a monitor.Settings struct themselves (file
// parsing is out of scope, spec §1) and pass it through Validate before
// starting a monitor.
package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/nedscode/dbrouted/pkg/monitor"
)

// Validate checks s against the numeric/timeout constraints spec §6's
// configuration key table implies, delegating the struct-tag and
// disk-threshold checks to monitor.Settings.Validate and reformatting any
// go-playground/validator field errors into a single friendly message,
// following dd0wney-graphdb's pkg/validation.formatValidationError idiom.
func Validate(s monitor.Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("config: %w", formatValidationError(err))
	}
	return nil
}

// formatValidationError rewrites the first field error out of a
// validator.ValidationErrors chain into "field: reason" form; any other
// error (including the hand-checked disk-threshold errors
// monitor.Settings.Validate returns directly) passes through unchanged.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	e := verrs[0]
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: is required", e.Field())
	case "gte":
		return fmt.Errorf("%s: must be at least %s", e.Field(), e.Param())
	case "lte":
		return fmt.Errorf("%s: must not exceed %s", e.Field(), e.Param())
	case "gt":
		return fmt.Errorf("%s: must be greater than %s", e.Field(), e.Param())
	default:
		return fmt.Errorf("%s: validation failed on %q", e.Field(), e.Tag())
	}
}
