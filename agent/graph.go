package agent

import (
	"context"
	"fmt"

	"github.com/aegisarsenal/aegis"
	"github.com/aegisarsenal/aegis/tool"
)

// Node names in the orchestrator graph.
const (
	NodeSupervisor        = "supervisor"
	NodeSecurityAnalyze   = "security_analyze"
	NodeSecurityRecommend = "security_recommend"
	NodeDevopsAnalyze     = "devops_analyze"
	NodeDevopsReport      = "devops_report"
	NodeDevopsPlan        = "devops_plan"
	NodeDevopsExecute     = "devops_execute"
	NodeGenerate          = "generate"
	NodeReflect           = "reflect"
)

// State field keys set by the branch nodes.
const (
	FieldSecurityAnalysis = "security_analysis"
	FieldDevopsAnalysis   = "devops_analysis"
	FieldCost             = "cost"
)

// Dependencies are the collaborators the graph nodes call into
type Dependencies struct {
	Generator      Generator
	PolicyAnalyzer PolicyAnalyzer
	HealthChecker  HealthChecker
	DeployRunner   DeployRunner
	Tools          *tool.Registry

	// ProjectID and ServiceName scope the simulated analyses
	ProjectID   string
	ServiceName string

	// CostPerCall is the nominal spend recorded per reasoning call
	CostPerCall float64
}

// NewGraph builds the orchestrator workflow graph: the supervisor entry
// node, the security and operations branches, and the general branch with
// its reflection quality gate.
func NewGraph(deps Dependencies) (*aegis.Graph, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("agent: generator is required")
	}
	if deps.PolicyAnalyzer == nil {
		deps.PolicyAnalyzer = SimulatedPolicyAnalyzer{}
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = SimulatedHealthChecker{}
	}
	if deps.DeployRunner == nil {
		deps.DeployRunner = SimulatedDeployRunner{}
	}
	if deps.ServiceName == "" {
		deps.ServiceName = "aegis-arsenal"
	}
	if deps.CostPerCall <= 0 {
		deps.CostPerCall = 0.01
	}

	nodes := []*aegis.Node{
		{
			Name:    NodeSupervisor,
			Handler: supervisorNode(),
			Select:  supervisorSelect,
		},
		{
			Name:    NodeSecurityAnalyze,
			Handler: securityAnalyzeNode(deps),
			Select:  hintSelect(map[string]string{"recommend": NodeSecurityRecommend}),
		},
		{
			Name:    NodeSecurityRecommend,
			Handler: securityRecommendNode(deps),
			Next:    aegis.End,
		},
		{
			Name:    NodeDevopsAnalyze,
			Handler: devopsAnalyzeNode(deps),
			Select: hintSelect(map[string]string{
				"report":  NodeDevopsReport,
				"plan":    NodeDevopsPlan,
				"execute": NodeDevopsExecute,
			}),
		},
		{
			Name:    NodeDevopsReport,
			Handler: devopsReportNode(deps),
			Next:    aegis.End,
		},
		{
			Name:    NodeDevopsPlan,
			Handler: devopsPlanNode(deps),
			Next:    aegis.End,
		},
		{
			Name:    NodeDevopsExecute,
			Handler: devopsExecuteNode(deps),
			Next:    aegis.End,
		},
		{
			Name:    NodeGenerate,
			Handler: generateNode(deps),
			Next:    NodeReflect,
		},
		{
			// The quality gate never blocks terminal routing.
			Name:    NodeReflect,
			Handler: reflectNode(),
			Next:    aegis.End,
		},
	}

	return aegis.NewGraph(aegis.GraphOptions{
		Name:  "aegis-orchestrator",
		Entry: NodeSupervisor,
		Nodes: nodes,
	})
}

// supervisorNode classifies the input and records the routing hint. The
// decision is persisted with the checkpoint and trusted on resume.
func supervisorNode() aegis.NodeFunc {
	return func(ctx context.Context, state *aegis.WorkflowState) error {
		branch := ClassifyInput(state.Input)
		state.RoutingHint = branch.String()
		state.AppendHistory("user: " + state.Input)
		aegis.LoggerFromContext(ctx).Info("input classified", "branch", branch.String())
		return nil
	}
}

func supervisorSelect(state *aegis.WorkflowState) string {
	switch state.RoutingHint {
	case BranchSecurity.String():
		return NodeSecurityAnalyze
	case BranchOperations.String():
		return NodeDevopsAnalyze
	default:
		return NodeGenerate
	}
}

// hintSelect routes on the routing hint, falling through to the terminal
// state for anything unmapped.
func hintSelect(routes map[string]string) aegis.Selector {
	return func(state *aegis.WorkflowState) string {
		if next, ok := routes[state.RoutingHint]; ok {
			return next
		}
		return aegis.End
	}
}

func securityAnalyzeNode(deps Dependencies) aegis.NodeFunc {
	return func(ctx context.Context, state *aegis.WorkflowState) error {
		switch classifySecurity(state.Input) {
		case securityActionPolicy:
			analysis, err := deps.PolicyAnalyzer.AnalyzePolicy(ctx, deps.ProjectID)
			if err != nil {
				return fmt.Errorf("policy analysis failed: %w", err)
			}
			state.SetField(FieldSecurityAnalysis, analysis)
			state.RoutingHint = "recommend"
		case securityActionServiceAccount:
			state.SetField(FieldSecurityAnalysis, map[string]any{
				"service_account": fmt.Sprintf("aegis-bot-sa@%s.iam.gserviceaccount.com", deps.ProjectID),
				"assessment":      "review roles for least privilege compliance",
			})
			state.RoutingHint = "recommend"
		default:
			state.SetField(FieldSecurityAnalysis, map[string]any{
				"message": "no specific security analysis requested",
			})
			state.RoutingHint = "end"
		}
		return nil
	}
}

func securityRecommendNode(deps Dependencies) aegis.NodeFunc {
	return func(ctx context.Context, state *aegis.WorkflowState) error {
		analysis, _ := state.GetField(FieldSecurityAnalysis)
		prompt := fmt.Sprintf("Provide prioritized security recommendations based on this analysis: %v", analysis)
		recommendations, err := deps.Generator.Generate(ctx, prompt)
		if err != nil {
			return fmt.Errorf("recommendation generation failed: %w", err)
		}
		addCost(state, deps.CostPerCall)
		state.Outcome = recommendations
		state.AppendHistory("assistant: " + recommendations)
		return nil
	}
}

func devopsAnalyzeNode(deps Dependencies) aegis.NodeFunc {
	return func(ctx context.Context, state *aegis.WorkflowState) error {
		switch classifyOps(state.Input) {
		case OpsActionReport:
			health, err := deps.HealthChecker.CheckHealth(ctx, deps.ServiceName)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			state.SetField(FieldDevopsAnalysis, health)
			state.RoutingHint = "report"
		case OpsActionPlan:
			state.SetField(FieldDevopsAnalysis, map[string]any{
				"message": "infrastructure plan analysis requested",
			})
			state.RoutingHint = "plan"
		case OpsActionExecute:
			state.SetField(FieldDevopsAnalysis, map[string]any{
				"command": fmt.Sprintf("deploy %s --source=.", deps.ServiceName),
			})
			state.RoutingHint = "execute"
		default:
			state.SetField(FieldDevopsAnalysis, map[string]any{
				"message": "no specific operations action requested",
			})
			state.RoutingHint = "end"
			state.Outcome = "no operations action required"
		}
		return nil
	}
}

func devopsReportNode(deps Dependencies) aegis.NodeFunc {
	return func(ctx context.Context, state *aegis.WorkflowState) error {
		analysis, _ := state.GetField(FieldDevopsAnalysis)
		prompt := fmt.Sprintf("Generate an operations report based on: %v", analysis)
		report, err := deps.Generator.Generate(ctx, prompt)
		if err != nil {
			return fmt.Errorf("report generation failed: %w", err)
		}
		addCost(state, deps.CostPerCall)
		state.Outcome = report
		state.AppendHistory("assistant: " + report)
		return nil
	}
}

func devopsPlanNode(deps Dependencies) aegis.NodeFunc {
	return func(ctx context.Context, state *aegis.WorkflowState) error {
		prompt := fmt.Sprintf(
			"Analyze this infrastructure plan and summarize changes, risks, and recommendations:\n\n%s",
			state.Input)
		summary, err := deps.Generator.Generate(ctx, prompt)
		if err != nil {
			return fmt.Errorf("plan analysis failed: %w", err)
		}
		addCost(state, deps.CostPerCall)

		// Attach an architecture diagram when the drawing tool is available.
		if deps.Tools != nil {
			if drawing, ok := deps.Tools.Get("create_drawing"); ok {
				result, err := drawing.Execute(ctx, map[string]any{
					"title":       "Infrastructure plan: " + state.ThreadID,
					"elements":    []any{"plan-summary"},
					"folder_path": "/aegis/plans",
				})
				if err != nil {
					aegis.LoggerFromContext(ctx).Warn("diagram generation failed", "error", err)
				} else if url, ok := result["url"].(string); ok {
					summary = fmt.Sprintf("%s\n\nDiagram: %s", summary, url)
				}
			}
		}

		state.Outcome = summary
		state.AppendHistory("assistant: " + summary)
		return nil
	}
}

func devopsExecuteNode(deps Dependencies) aegis.NodeFunc {
	return func(ctx context.Context, state *aegis.WorkflowState) error {
		analysis, _ := state.GetField(FieldDevopsAnalysis)
		command := fmt.Sprintf("deploy %s --source=.", deps.ServiceName)
		if m, ok := analysis.(map[string]any); ok {
			if c, ok := m["command"].(string); ok {
				command = c
			}
		}
		result, err := deps.DeployRunner.RunDeploy(ctx, command)
		if err != nil {
			return fmt.Errorf("deployment execution failed: %w", err)
		}
		state.Outcome = fmt.Sprintf("deployment executed: %v", result)
		state.AppendHistory("assistant: " + state.Outcome)
		return nil
	}
}

func generateNode(deps Dependencies) aegis.NodeFunc {
	return func(ctx context.Context, state *aegis.WorkflowState) error {
		outcome, err := deps.Generator.Generate(ctx, state.Input)
		if err != nil {
			return fmt.Errorf("generation failed: %w", err)
		}
		addCost(state, deps.CostPerCall)
		state.Outcome = outcome
		state.AppendHistory("assistant: " + outcome)
		return nil
	}
}

func reflectNode() aegis.NodeFunc {
	return func(ctx context.Context, state *aegis.WorkflowState) error {
		rewritten, issues := reflectOutcome(state.Outcome)
		if len(issues) > 0 {
			aegis.LoggerFromContext(ctx).Warn("outcome flagged by reflection", "issues", issues)
			state.Outcome = rewritten
		}
		return nil
	}
}

// addCost accumulates the nominal spend for the run on the state, where the
// caller that triggered the run picks it up for ledger recording.
func addCost(state *aegis.WorkflowState, amount float64) {
	current, _ := state.GetField(FieldCost)
	total, _ := current.(float64)
	state.SetField(FieldCost, total+amount)
}

// RunCost returns the accumulated spend recorded on a state
func RunCost(state *aegis.WorkflowState) float64 {
	value, _ := state.GetField(FieldCost)
	cost, _ := value.(float64)
	return cost
}
