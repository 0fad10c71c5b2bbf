// Package agent builds the orchestrator's workflow graph: a supervisor that
// classifies incoming requests into security, operations, or general
// branches, the branch nodes themselves, and the reflection quality gate on
// the general branch.
package agent

import "strings"

// Branch identifies the top-level routing decision made by the supervisor
type Branch int

const (
	BranchSecurity Branch = iota
	BranchOperations
	BranchGeneral
)

// String returns the routing hint value for the branch
func (b Branch) String() string {
	switch b {
	case BranchSecurity:
		return "security"
	case BranchOperations:
		return "operations"
	default:
		return "general"
	}
}

// Keyword groups inspected by the supervisor, in priority order. Ties are
// broken by group priority, not by keyword position in the text.
var (
	securityKeywords   = []string{"iam", "permission", "security"}
	operationsKeywords = []string{"deploy", "build", "terraform", "health"}
)

// ClassifyInput inspects the input case-insensitively for keyword groups and
// returns the first matching branch in priority order: security, then
// operations, then general.
func ClassifyInput(input string) Branch {
	lowered := strings.ToLower(input)
	for _, keyword := range securityKeywords {
		if strings.Contains(lowered, keyword) {
			return BranchSecurity
		}
	}
	for _, keyword := range operationsKeywords {
		if strings.Contains(lowered, keyword) {
			return BranchOperations
		}
	}
	return BranchGeneral
}

// OpsAction identifies the operations sub-path
type OpsAction int

const (
	OpsActionReport OpsAction = iota
	OpsActionPlan
	OpsActionExecute
	OpsActionNone
)

// classifyOps selects the operations sub-path: health checks report,
// infrastructure plans get analyzed, deploys get executed, and anything else
// takes the no-op path straight to the terminal state.
func classifyOps(input string) OpsAction {
	lowered := strings.ToLower(input)
	switch {
	case strings.Contains(lowered, "health") || strings.Contains(lowered, "status"):
		return OpsActionReport
	case strings.Contains(lowered, "terraform") || strings.Contains(lowered, "iac"):
		return OpsActionPlan
	case strings.Contains(lowered, "deploy"):
		return OpsActionExecute
	default:
		return OpsActionNone
	}
}

// securityAction identifies the security sub-path
type securityAction int

const (
	securityActionPolicy securityAction = iota
	securityActionServiceAccount
	securityActionNone
)

func classifySecurity(input string) securityAction {
	lowered := strings.ToLower(input)
	switch {
	case strings.Contains(lowered, "iam") || strings.Contains(lowered, "policy"):
		return securityActionPolicy
	case strings.Contains(lowered, "service account") || strings.Contains(lowered, " sa "):
		return securityActionServiceAccount
	default:
		return securityActionNone
	}
}
