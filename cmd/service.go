package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/orchestration"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Operate on service instances",
}

var (
	serviceTenant      string
	serviceTriggeredBy string

	suspendType   string
	suspendReason string
	suspendResume string
	suspendNotify bool

	terminateReason string
	terminateAt     string
	terminateNotify bool
	terminateReturn bool
)

var serviceActivateCmd = &cobra.Command{
	Use:   "activate <instance-id>",
	Short: "Activate a provisioned or suspended instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceActivate,
}

var serviceSuspendCmd = &cobra.Command{
	Use:   "suspend <instance-id>",
	Short: "Suspend an active instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceSuspend,
}

var serviceResumeCmd = &cobra.Command{
	Use:   "resume <instance-id>",
	Short: "Lift a suspension",
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceResume,
}

var serviceTerminateCmd = &cobra.Command{
	Use:   "terminate <instance-id>",
	Short: "Terminate an instance, now or at a future date",
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceTerminate,
}

var serviceHealthCmd = &cobra.Command{
	Use:   "health <instance-id>",
	Short: "Probe an instance and record the verdict",
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceHealth,
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(serviceActivateCmd, serviceSuspendCmd, serviceResumeCmd,
		serviceTerminateCmd, serviceHealthCmd)

	serviceCmd.PersistentFlags().StringVarP(&serviceTenant, "tenant", "t", "", "tenant identifier (required)")
	_ = serviceCmd.MarkPersistentFlagRequired("tenant")
	serviceCmd.PersistentFlags().StringVar(&serviceTriggeredBy, "triggered-by", "", "who triggered the operation")

	serviceSuspendCmd.Flags().StringVar(&suspendType, "type", "other", "suspension type (fraud|non_payment|other)")
	serviceSuspendCmd.Flags().StringVar(&suspendReason, "reason", "", "suspension reason (required)")
	_ = serviceSuspendCmd.MarkFlagRequired("reason")
	serviceSuspendCmd.Flags().StringVar(&suspendResume, "auto-resume-at", "", "RFC 3339 time to lift the suspension automatically")
	serviceSuspendCmd.Flags().BoolVar(&suspendNotify, "notify", false, "record a notification request on the suspension event")

	serviceTerminateCmd.Flags().StringVar(&terminateReason, "reason", "", "termination reason (required)")
	_ = serviceTerminateCmd.MarkFlagRequired("reason")
	serviceTerminateCmd.Flags().StringVar(&terminateAt, "at", "", "RFC 3339 date for a scheduled termination")
	serviceTerminateCmd.Flags().BoolVar(&terminateNotify, "notify", false, "record a notification request on the termination event")
	serviceTerminateCmd.Flags().BoolVar(&terminateReturn, "return-equipment", false, "flag the subscriber's equipment for return")
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("parsing --%s: %w", name, err)
	}
	return &ts, nil
}

func runServiceActivate(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.ActivateService(cmd.Context(), orchestration.ActivateServiceRequest{
		TenantID:          serviceTenant,
		ServiceInstanceID: args[0],
		TriggeredBy:       serviceTriggeredBy,
	})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runServiceSuspend(cmd *cobra.Command, args []string) error {
	resumeAt, err := parseTimeFlag("auto-resume-at", suspendResume)
	if err != nil {
		return err
	}

	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.SuspendService(cmd.Context(), orchestration.SuspendServiceRequest{
		TenantID:          serviceTenant,
		ServiceInstanceID: args[0],
		SuspensionType:    domain.SuspensionType(suspendType),
		Reason:            suspendReason,
		AutoResumeAt:      resumeAt,
		SendNotification:  suspendNotify,
		TriggeredBy:       serviceTriggeredBy,
	})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runServiceResume(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.ResumeService(cmd.Context(), orchestration.ActivateServiceRequest{
		TenantID:          serviceTenant,
		ServiceInstanceID: args[0],
		TriggeredBy:       serviceTriggeredBy,
	})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runServiceTerminate(cmd *cobra.Command, args []string) error {
	terminationDate, err := parseTimeFlag("at", terminateAt)
	if err != nil {
		return err
	}

	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.TerminateService(cmd.Context(), orchestration.TerminateServiceRequest{
		TenantID:          serviceTenant,
		ServiceInstanceID: args[0],
		Reason:            terminateReason,
		TerminationDate:   terminationDate,
		SendNotification:  terminateNotify,
		ReturnEquipment:   terminateReturn,
		TriggeredBy:       serviceTriggeredBy,
	})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runServiceHealth(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.PerformHealthCheck(cmd.Context(), serviceTenant, args[0], serviceTriggeredBy)
	if err != nil {
		return err
	}
	return printJSON(res)
}
