package policy

import "fmt"

// ConfigError reports a structurally invalid policy. It is fatal to
// loading: no part of a file that raises it is ever applied.
type ConfigError struct {
	// Context is the offending rule id or section name, if known.
	Context string
	// Reason describes the violation.
	Reason string
}

func (e ConfigError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("policy config: %s", e.Reason)
	}
	return fmt.Sprintf("policy config (%s): %s", e.Context, e.Reason)
}
