package rules

import "fmt"

// RejectedError is returned by ApplyInput for a syntactically well-formed
// but semantically invalid input (spec §4.4: "Rejected(kind)").
type RejectedError struct {
	Kind string
}

func (e *RejectedError) Error() string {
	return "rejected: " + e.Kind
}

// Rejected builds a RejectedError.
func Rejected(kind string) error {
	return &RejectedError{Kind: kind}
}

// InvalidSettingsError is returned by a Constructor when settings fail
// validation (spec §4.4: "fail with invalid_settings kind").
type InvalidSettingsError struct {
	Reason string
}

func (e *InvalidSettingsError) Error() string {
	return fmt.Sprintf("invalid_settings: %s", e.Reason)
}

// InvalidSettings builds an InvalidSettingsError.
func InvalidSettings(format string, args ...any) error {
	return &InvalidSettingsError{Reason: fmt.Sprintf(format, args...)}
}
