package agent

import (
	"context"
	"fmt"
	"strings"
)

// Generator is the reasoning collaborator: given prompt text, return
// generated text. It may fail or time out; retry policy belongs to the
// caller.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// PolicyAnalyzer summarizes identity policy bindings for a project
type PolicyAnalyzer interface {
	AnalyzePolicy(ctx context.Context, projectID string) (map[string]any, error)
}

// HealthChecker reports the health of a deployed service
type HealthChecker interface {
	CheckHealth(ctx context.Context, serviceName string) (map[string]any, error)
}

// DeployRunner executes (or simulates) a deployment command
type DeployRunner interface {
	RunDeploy(ctx context.Context, command string) (map[string]any, error)
}

// StaticGenerator returns canned text, optionally echoing the prompt. Used
// in tests and local runs without a model provider.
type StaticGenerator struct {
	Prefix string
}

func (g *StaticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prefix := g.Prefix
	if prefix == "" {
		prefix = "generated"
	}
	return fmt.Sprintf("%s: %s", prefix, firstLine(prompt)), nil
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

// SimulatedPolicyAnalyzer produces a policy summary without calling a cloud
// provider. High-privilege roles are flagged the way a real analysis would.
type SimulatedPolicyAnalyzer struct{}

var dangerousRoles = []string{
	"roles/owner",
	"roles/editor",
	"roles/iam.securityAdmin",
	"roles/resourcemanager.projectIamAdmin",
}

func (SimulatedPolicyAnalyzer) AnalyzePolicy(ctx context.Context, projectID string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]any{
		"project_id":           projectID,
		"total_bindings":       3,
		"high_privilege_roles": []string{dangerousRoles[0]},
		"recommendations": []string{
			"Consider implementing least privilege: replace broad roles with specific permissions",
		},
	}, nil
}

// SimulatedHealthChecker reports a healthy service without calling a cloud
// provider.
type SimulatedHealthChecker struct{}

func (SimulatedHealthChecker) CheckHealth(ctx context.Context, serviceName string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]any{
		"service": serviceName,
		"status":  "healthy",
	}, nil
}

// SimulatedDeployRunner logs a deployment command instead of executing it.
// Production deployments go through an approved pipeline, never from here.
type SimulatedDeployRunner struct{}

func (SimulatedDeployRunner) RunDeploy(ctx context.Context, command string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]any{
		"command":        command,
		"status":         "simulated_success",
		"output":         fmt.Sprintf("simulated execution of: %s", command),
		"recommendation": "execute via approved CI/CD pipeline only",
	}, nil
}
