package agent

import (
	"fmt"
	"strings"
)

// Quality gate thresholds for the reflection node.
const (
	// verbosityThreshold is the outcome length above which the reflection
	// node flags the text as excessively long.
	verbosityThreshold = 1000

	flagMarker = "[FLAGGED]"
)

// sensitiveTerms is the fixed vocabulary scanned for in produced text.
var sensitiveTerms = []string{"password", "secret", "api key", "private key"}

// reflectOutcome scans the produced text for sensitive-data indicators and
// excessive length. When either condition holds the outcome is rewritten
// with a flagged marker and the list of detected issues; otherwise it passes
// through unchanged.
func reflectOutcome(outcome string) (string, []string) {
	var issues []string

	lowered := strings.ToLower(outcome)
	for _, term := range sensitiveTerms {
		if strings.Contains(lowered, term) {
			issues = append(issues, fmt.Sprintf("possible sensitive data: %q", term))
		}
	}
	if len(outcome) > verbosityThreshold {
		issues = append(issues, fmt.Sprintf("excessive length: %d characters", len(outcome)))
	}

	if len(issues) == 0 {
		return outcome, nil
	}
	return fmt.Sprintf("%s %s\nIssues: %s", flagMarker, outcome, strings.Join(issues, "; ")), issues
}
