package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devopsd/internal/cloud"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
	"github.com/fyrsmithlabs/devopsd/internal/terraform"
)

type workflowRunInput struct {
	Request       string   `json:"request" jsonschema:"Natural language description of the DevOps work"`
	Phase         string   `json:"phase,omitempty" jsonschema:"Run only this phase (cicd, infra, k8s, monitoring, security, app)"`
	CloudProvider string   `json:"cloud_provider,omitempty" jsonschema:"Cloud provider for infrastructure (aws, azure, gcp)"`
	Region        string   `json:"region,omitempty" jsonschema:"Cloud region (defaults to the provider's default region)"`
	Resources     []string `json:"resources,omitempty" jsonschema:"Infrastructure resources to generate (default vpc, subnet, security_group)"`
	Deploy        bool     `json:"deploy,omitempty" jsonschema:"Simulate deployment of the generated infrastructure"`
}

type workflowRunOutput struct {
	RunID           string            `json:"run_id"`
	Status          string            `json:"status"`
	FinalResponse   string            `json:"final_response,omitempty"`
	Clarification   string            `json:"clarification,omitempty"`
	CompletedPhases []string          `json:"completed_phases,omitempty"`
	Artifacts       map[string]string `json:"artifacts,omitempty"`
	Errors          []string          `json:"errors,omitempty"`
}

type cicdGenerateInput struct {
	Request string `json:"request" jsonschema:"Description of the application, used to detect its runtime"`
}

type cicdGenerateOutput struct {
	ProjectName string `json:"project_name"`
	BuildImage  string `json:"build_image"`
	Pipeline    string `json:"pipeline"`
}

type terraformValidateInput struct {
	HCL           string `json:"hcl" jsonschema:"Terraform configuration text"`
	CloudProvider string `json:"cloud_provider,omitempty" jsonschema:"Provider used to repair a configuration without a provider block"`
}

type terraformValidateOutput struct {
	Valid     bool     `json:"valid"`
	Problems  []string `json:"problems,omitempty"`
	Resources []string `json:"resources,omitempty"`
	Repairs   []string `json:"repairs,omitempty"`
	Repaired  string   `json:"repaired,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_run",
		Description: "Run the DevOps workflow for a request. The supervisor runs CI/CD, infrastructure, Kubernetes, monitoring and security phases in order, or only the named phase.",
	}, instrument(s, "workflow_run", s.handleWorkflowRun))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cicd_generate",
		Description: "Generate a GitLab CI pipeline (.gitlab-ci.yml) for the application described in the request.",
	}, instrument(s, "cicd_generate", s.handleCICDGenerate))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "terraform_validate",
		Description: "Check Terraform text for a provider block and complete resources. Returns a repaired configuration when a cloud provider is given.",
	}, instrument(s, "terraform_validate", s.handleTerraformValidate))
}

// instrument records metrics and logs around a tool handler.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		res, out, err := h(ctx, req, in)
		s.metrics.DecrementActive(ctx, name)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Warn(ctx, "tool call failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

func (s *Server) handleWorkflowRun(ctx context.Context, _ *mcp.CallToolRequest, in workflowRunInput) (*mcp.CallToolResult, workflowRunOutput, error) {
	if strings.TrimSpace(in.Request) == "" {
		return nil, workflowRunOutput{}, errors.New("request is required")
	}

	opts := []orchestrator.StateOption{orchestrator.WithPhaseInput(orchestrator.PhaseInput{
		CloudProvider: in.CloudProvider,
		Region:        in.Region,
		Resources:     in.Resources,
		Deploy:        in.Deploy,
	})}

	var result *orchestrator.Result
	if in.Phase != "" {
		var err error
		result, err = s.runner.ExecutePhase(ctx, orchestrator.Phase(in.Phase), in.Request, opts...)
		if err != nil {
			return nil, workflowRunOutput{}, err
		}
	} else {
		result = s.runner.Execute(ctx, in.Request, opts...)
	}

	out := summarize(result)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: describe(out)}},
		IsError: result.Status == orchestrator.StatusFailed,
	}, out, nil
}

func (s *Server) handleCICDGenerate(ctx context.Context, _ *mcp.CallToolRequest, in cicdGenerateInput) (*mcp.CallToolResult, cicdGenerateOutput, error) {
	if strings.TrimSpace(in.Request) == "" {
		return nil, cicdGenerateOutput{}, errors.New("request is required")
	}

	res, err := s.pipelines.Generate(ctx, in.Request)
	if err != nil {
		return nil, cicdGenerateOutput{}, fmt.Errorf("pipeline generation failed: %w", err)
	}

	out := cicdGenerateOutput{
		ProjectName: res.ProjectName,
		BuildImage:  res.BuildImage,
		Pipeline:    res.Pipeline(),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: out.Pipeline}},
	}, out, nil
}

func (s *Server) handleTerraformValidate(_ context.Context, _ *mcp.CallToolRequest, in terraformValidateInput) (*mcp.CallToolResult, terraformValidateOutput, error) {
	cfg := terraform.Parse(in.HCL)
	out := terraformValidateOutput{Resources: cfg.ResourceTypes()}

	verr := terraform.Validate(cfg)
	if verr == nil {
		out.Valid = true
		return textResult(fmt.Sprintf("Terraform configuration is valid (%d resources)", len(cfg.Resources))), out, nil
	}

	var ve *terraform.ValidationError
	if errors.As(verr, &ve) {
		out.Problems = ve.Problems
	}

	if in.CloudProvider != "" {
		info, err := cloud.Lookup(in.CloudProvider)
		if err != nil {
			return nil, terraformValidateOutput{}, err
		}
		fixed, repairs := terraform.Repair(cfg, info.ProviderBlock)
		if terraform.Validate(fixed) == nil {
			out.Repairs = repairs
			out.Repaired = fixed.HCL()
			return textResult(verr.Error() + "\nRepaired: " + strings.Join(repairs, ", ")), out, nil
		}
	}

	return textResult(verr.Error()), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func summarize(r *orchestrator.Result) workflowRunOutput {
	out := workflowRunOutput{
		RunID:         r.RunID,
		Status:        string(r.Status),
		FinalResponse: r.FinalResponse,
		Clarification: r.Clarification,
	}
	for _, p := range r.CompletedPhases {
		out.CompletedPhases = append(out.CompletedPhases, string(p))
	}
	for _, res := range r.PhaseResults {
		producer, ok := res.(orchestrator.ArtifactProducer)
		if !ok {
			continue
		}
		for name, content := range producer.Artifacts() {
			if out.Artifacts == nil {
				out.Artifacts = make(map[string]string)
			}
			out.Artifacts[name] = content
		}
	}
	for _, e := range r.Errors {
		out.Errors = append(out.Errors, e.Agent+": "+e.Message)
	}
	return out
}

func describe(out workflowRunOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s\n", out.RunID, out.Status)
	switch {
	case out.Clarification != "":
		fmt.Fprintf(&b, "Clarification needed: %s\n", out.Clarification)
	case out.FinalResponse != "":
		fmt.Fprintf(&b, "%s\n", out.FinalResponse)
	}
	if len(out.CompletedPhases) > 0 {
		fmt.Fprintf(&b, "Completed phases: %s\n", strings.Join(out.CompletedPhases, ", "))
	}
	if len(out.Artifacts) > 0 {
		names := make([]string, 0, len(out.Artifacts))
		for name := range out.Artifacts {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "Artifacts: %s\n", strings.Join(names, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
