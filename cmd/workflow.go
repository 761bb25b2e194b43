package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/orchestration"
	"github.com/fiberline/switchyard/internal/saga"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Start, inspect, retry, and cancel workflow runs",
}

var (
	workflowTenant     string
	workflowDefinition string
	workflowSubscriber string
	workflowInput      string
	workflowInitiator  string
	workflowMaxRetries int
	workflowAsync      bool

	listStatus string
	listKind   string
	listLimit  int
	listOffset int
)

var workflowStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a run of a named workflow definition",
	Long: `Start a workflow run. The input payload is a JSON object whose keys are
what the definition's step handlers read.

Example:
  switchyard workflow start -t tenant-1 -d suspend_service \
    --input '{"service_instance_id":"si-123","reason":"non-payment"}'`,
	RunE: runWorkflowStart,
}

var workflowGetCmd = &cobra.Command{
	Use:   "get <workflow-id>",
	Short: "Show one workflow run with its steps",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowGet,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflow runs, newest first",
	RunE:  runWorkflowList,
}

var workflowRetryCmd = &cobra.Command{
	Use:   "retry <workflow-id>",
	Short: "Re-run a failed or rolled-back workflow",
	Long: `Re-run a workflow that settled in failed or rolled_back. After a transient
failure the run resumes past its completed steps; after a rollback it starts
over from the beginning with the stored context.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowRetry,
}

var workflowCancelCmd = &cobra.Command{
	Use:   "cancel <workflow-id>",
	Short: "Cancel a pending or running workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowCancel,
}

var workflowStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show workflow statistics for a tenant",
	RunE:  runWorkflowStats,
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowStartCmd, workflowGetCmd, workflowListCmd,
		workflowRetryCmd, workflowCancelCmd, workflowStatsCmd)

	workflowCmd.PersistentFlags().StringVarP(&workflowTenant, "tenant", "t", "", "tenant identifier (required)")
	_ = workflowCmd.MarkPersistentFlagRequired("tenant")

	workflowStartCmd.Flags().StringVarP(&workflowDefinition, "definition", "d", "", "workflow definition name (required)")
	_ = workflowStartCmd.MarkFlagRequired("definition")
	workflowStartCmd.Flags().StringVar(&workflowSubscriber, "subscriber", "", "subscriber identifier")
	workflowStartCmd.Flags().StringVar(&workflowInput, "input", "", "JSON input payload")
	workflowStartCmd.Flags().StringVar(&workflowInitiator, "initiator", "", "who initiated the run")
	workflowStartCmd.Flags().IntVar(&workflowMaxRetries, "max-retries", 0, "override the workflow retry budget")
	workflowStartCmd.Flags().BoolVar(&workflowAsync, "async", false, "queue the run and return immediately")

	workflowListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	workflowListCmd.Flags().StringVar(&listKind, "kind", "", "filter by definition kind")
	workflowListCmd.Flags().StringVar(&workflowSubscriber, "subscriber", "", "filter by subscriber")
	workflowListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum runs to return")
	workflowListCmd.Flags().IntVar(&listOffset, "offset", 0, "runs to skip")
}

// printRunOutcome prints the run's final state, then surfaces a saga failure
// as a non-zero exit. The record was persisted either way.
func printRunOutcome(resp *orchestration.WorkflowResponse, err error) error {
	var execErr *saga.ExecutionError
	if err != nil && !errors.As(err, &execErr) {
		return err
	}
	if resp != nil {
		if printErr := printJSON(resp); printErr != nil {
			return printErr
		}
	}
	if execErr != nil {
		return execErr
	}
	return nil
}

func runWorkflowStart(cmd *cobra.Command, _ []string) error {
	var input map[string]any
	if workflowInput != "" {
		if err := json.Unmarshal([]byte(workflowInput), &input); err != nil {
			return fmt.Errorf("parsing --input: %w", err)
		}
	}

	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := svc.StartWorkflow(cmd.Context(), orchestration.StartWorkflowRequest{
		TenantID:     workflowTenant,
		Definition:   workflowDefinition,
		SubscriberID: workflowSubscriber,
		Input:        input,
		MaxRetries:   workflowMaxRetries,
		Initiator:    workflowInitiator,
		Async:        workflowAsync,
	})
	return printRunOutcome(resp, err)
}

func runWorkflowGet(_ *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := svc.GetWorkflow(workflowTenant, args[0])
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runWorkflowList(_ *cobra.Command, _ []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := svc.ListWorkflows(workflowTenant, domain.WorkflowListFilter{
		Status:       domain.WorkflowStatus(listStatus),
		Kind:         domain.WorkflowKind(listKind),
		SubscriberID: workflowSubscriber,
		Limit:        listLimit,
		Offset:       listOffset,
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runWorkflowRetry(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := svc.RetryWorkflow(cmd.Context(), workflowTenant, args[0])
	return printRunOutcome(resp, err)
}

func runWorkflowCancel(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := svc.CancelWorkflow(cmd.Context(), workflowTenant, args[0])
	return printRunOutcome(resp, err)
}

func runWorkflowStats(_ *cobra.Command, _ []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := svc.WorkflowStatistics(workflowTenant)
	if err != nil {
		return err
	}
	return printJSON(stats)
}
