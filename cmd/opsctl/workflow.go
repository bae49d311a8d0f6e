package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/devopsd/internal/config"
	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
	"github.com/fyrsmithlabs/devopsd/internal/services"
)

// workflowFlags are shared by run and submit.
type workflowFlags struct {
	phase     string
	provider  string
	region    string
	resources []string
	deploy    bool
}

func (f *workflowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.phase, "phase", "", "run only this phase (cicd, infra, k8s, monitoring, security, app)")
	cmd.Flags().StringVar(&f.provider, "provider", "", "cloud provider for infrastructure (aws, azure, gcp)")
	cmd.Flags().StringVar(&f.region, "region", "", "cloud region")
	cmd.Flags().StringSliceVar(&f.resources, "resource", nil, "infrastructure resource to generate (repeatable)")
	cmd.Flags().BoolVar(&f.deploy, "deploy", false, "simulate deployment of the generated infrastructure")
}

func (f *workflowFlags) input() orchestrator.PhaseInput {
	return orchestrator.PhaseInput{
		CloudProvider: f.provider,
		Region:        f.region,
		Resources:     f.resources,
		Deploy:        f.deploy,
	}
}

func newRunCmd() *cobra.Command {
	var (
		flags      workflowFlags
		configPath string
	)
	cmd := &cobra.Command{
		Use:   "run <request>",
		Short: "Run a workflow in-process and print the result",
		Long: `Run a workflow without a server and print the result document as JSON.

Examples:
  # Run every phase
  opsctl run "Set up CI/CD for my Node.js app"

  # Generate GCP infrastructure only
  opsctl run --phase infra --provider gcp --region europe-west1 "network for my service"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithFile(configPath)
			if err != nil {
				return err
			}
			svcs, err := services.Build(cfg, logging.NewNop(), nil)
			if err != nil {
				return err
			}

			request := strings.Join(args, " ")
			opts := []orchestrator.StateOption{orchestrator.WithPhaseInput(flags.input())}

			var result *orchestrator.Result
			if flags.phase != "" {
				result, err = svcs.Orchestrator().ExecutePhase(cmd.Context(), orchestrator.Phase(flags.phase), request, opts...)
				if err != nil {
					return err
				}
			} else {
				result = svcs.Orchestrator().Execute(cmd.Context(), request, opts...)
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			return statusError(string(result.Status))
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/devopsd/config.yaml)")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var flags workflowFlags
	cmd := &cobra.Command{
		Use:   "submit <request>",
		Short: "Submit a workflow to the devopsd server",
		Long: `Submit a workflow to the devopsd server and print the result document.

Examples:
  opsctl submit "Set up CI/CD for my python service"
  opsctl submit --server http://localhost:9292 --phase cicd "java api"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := flags.input()
			req := workflowRequest{
				Request: strings.Join(args, " "),
				Phase:   flags.phase,
			}
			if in.CloudProvider != "" || in.Region != "" || len(in.Resources) > 0 || in.Deploy {
				req.Input = &in
			}

			var doc map[string]any
			if err := newClient(serverURL).post(cmd.Context(), "/api/v1/workflows", req, &doc); err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), doc); err != nil {
				return err
			}
			status, _ := doc["status"].(string)
			return statusError(status)
		},
	}
	flags.register(cmd)
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Fetch a stored workflow result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc map[string]any
			if err := newClient(serverURL).get(cmd.Context(), "/api/v1/workflows/"+args[0], &doc); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check devopsd server health",
		Long: `Check the health status of the devopsd HTTP server.

Examples:
  opsctl health
  opsctl health --server http://localhost:9292`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp healthResponse
			if err := newClient(serverURL).get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
			return err
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// statusError turns a failed run into a non-zero exit.
func statusError(status string) error {
	if status == string(orchestrator.StatusFailed) || status == string(orchestrator.StatusCancelled) {
		return fmt.Errorf("workflow %s", status)
	}
	return nil
}
