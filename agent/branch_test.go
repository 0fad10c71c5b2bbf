package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyInput(t *testing.T) {
	tests := []struct {
		input string
		want  Branch
	}{
		{"We need an IAM permission review", BranchSecurity},
		{"please review the security posture", BranchSecurity},
		{"who has permission to read the bucket", BranchSecurity},
		{"please deploy the new build", BranchOperations},
		{"run the terraform plan", BranchOperations},
		{"is the service health ok", BranchOperations},
		{"what's the weather like today", BranchGeneral},
		{"", BranchGeneral},
		// Security wins over operations when both groups match.
		{"deploy the new IAM policy", BranchSecurity},
		// Matching is case-insensitive.
		{"DEPLOY NOW", BranchOperations},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.want, ClassifyInput(tt.input))
		})
	}
}

func TestBranchString(t *testing.T) {
	require.Equal(t, "security", BranchSecurity.String())
	require.Equal(t, "operations", BranchOperations.String())
	require.Equal(t, "general", BranchGeneral.String())
}

func TestClassifyOps(t *testing.T) {
	require.Equal(t, OpsActionReport, classifyOps("check service health"))
	require.Equal(t, OpsActionReport, classifyOps("what is the status"))
	require.Equal(t, OpsActionPlan, classifyOps("review this terraform change"))
	require.Equal(t, OpsActionExecute, classifyOps("deploy the build"))
	require.Equal(t, OpsActionNone, classifyOps("something else entirely"))

	// Health outranks deploy when both appear.
	require.Equal(t, OpsActionReport, classifyOps("deploy and check health"))
}

func TestClassifySecurity(t *testing.T) {
	require.Equal(t, securityActionPolicy, classifySecurity("audit the IAM bindings"))
	require.Equal(t, securityActionPolicy, classifySecurity("review the access policy"))
	require.Equal(t, securityActionServiceAccount, classifySecurity("rotate the service account key"))
	require.Equal(t, securityActionNone, classifySecurity("general security question"))
}
