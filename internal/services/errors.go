package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrAmbiguous     = errors.New("ambiguous input")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrUnit          = errors.New("unit failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrUnit
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Hint returns a short operator-facing remedy for a classified error.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "fix the spec file, flags, or config and rerun; nothing was modified"
	case errors.Is(err, ErrAmbiguous):
		return "pass --extension or --prefix to pick one of the candidates"
	case errors.Is(err, ErrValidation):
		return "check the rename state with 'scanlapse status'"
	case errors.Is(err, ErrNotFound):
		return "check the path arguments"
	default:
		return "inspect the log for the failing unit and rerun"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
