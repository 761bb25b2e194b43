package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fiberline/switchyard/internal/collab"
	"github.com/fiberline/switchyard/internal/infrastructure/sqlite"
	"github.com/fiberline/switchyard/internal/orchestration"
)

var playgroundKeepDB bool

var playgroundCmd = &cobra.Command{
	Use:   "playground",
	Short: "Run a scripted provisioning scenario against in-memory fakes",
	Long: `Run a self-contained demo: provision a subscriber against fake IPAM,
RADIUS, access-node, CPE, and billing collaborators, then suspend, resume,
and terminate the service. Events are printed as they happen.

The scenario uses a throwaway database unless --keep-db is set.`,
	RunE: runScenario,
}

func init() {
	rootCmd.AddCommand(playgroundCmd)
	playgroundCmd.Flags().BoolVar(&playgroundKeepDB, "keep-db", false,
		"run against the configured database instead of a throwaway one")
}

func runScenario(cmd *cobra.Command, _ []string) error {
	dbPath := cfg.Database.Path
	if !playgroundKeepDB {
		dir, err := os.MkdirTemp("", "switchyard-playground-*")
		if err != nil {
			return err
		}
		defer func() { _ = os.RemoveAll(dir) }()
		dbPath = filepath.Join(dir, "playground.db")
	}

	db, err := sqlite.NewDB(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	set, _ := collab.NewFakeSet()
	svc, err := orchestration.New(orchestration.Config{
		DB:            db,
		Collaborators: set,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	// Print the event stream while the scenario runs.
	eventCtx, cancelEvents := context.WithCancel(context.Background())
	defer cancelEvents()
	go func() {
		for ev := range svc.Subscribe(eventCtx) {
			p := ev.Payload
			switch {
			case p.StepName != "":
				fmt.Printf("  event %-22s step=%d %s\n", p.Type, p.StepSequence, p.StepName)
			case p.ServiceInstanceID != "" && p.ServiceStatus != "":
				fmt.Printf("  event %-22s %s -> %s\n", p.Type, p.ServiceInstanceID, p.ServiceStatus)
			default:
				fmt.Printf("  event %-22s %s %s\n", p.Type, p.WorkflowID, p.WorkflowStatus)
			}
		}
	}()

	ctx := cmd.Context()
	const tenant = "tenant-demo"

	fmt.Println("provisioning subscriber...")
	resp, err := svc.ProvisionSubscriber(ctx, orchestration.ProvisionSubscriberRequest{
		TenantID:     tenant,
		Email:        "demo@example.net",
		Name:         "Playground Fiber",
		PlanID:       "plan-fiber-1g",
		ServiceType:  "fiber",
		CircuitID:    "olt1/1/3/7",
		RemoteID:     "cpe-mac-0a1b2c",
		ServiceVLAN:  210,
		InnerVLAN:    34,
		IPv6Mode:     "prefix_delegation",
		CPEDeviceID:  "cpe-demo-1",
		AutoActivate: true,
		Initiator:    "playground",
	})
	if err != nil {
		return fmt.Errorf("provisioning: %w", err)
	}
	fmt.Printf("workflow %s settled %s (%d/%d steps)\n",
		resp.WorkflowID, resp.Status, resp.CurrentStep, resp.TotalSteps)

	instanceID, _ := resp.Context["service_instance_id"].(string)
	if instanceID == "" {
		return fmt.Errorf("provisioning run did not record a service instance")
	}

	fmt.Println("\nsuspending for non-payment...")
	if _, err := svc.SuspendService(ctx, orchestration.SuspendServiceRequest{
		TenantID:          tenant,
		ServiceInstanceID: instanceID,
		SuspensionType:    "non_payment",
		Reason:            "invoice 42 overdue",
		TriggeredBy:       "playground",
	}); err != nil {
		return fmt.Errorf("suspending: %w", err)
	}

	fmt.Println("\nresuming...")
	if _, err := svc.ResumeService(ctx, orchestration.ActivateServiceRequest{
		TenantID:          tenant,
		ServiceInstanceID: instanceID,
		TriggeredBy:       "playground",
	}); err != nil {
		return fmt.Errorf("resuming: %w", err)
	}

	fmt.Println("\nterminating...")
	if _, err := svc.TerminateService(ctx, orchestration.TerminateServiceRequest{
		TenantID:          tenant,
		ServiceInstanceID: instanceID,
		Reason:            "playground scenario complete",
		TriggeredBy:       "playground",
	}); err != nil {
		return fmt.Errorf("terminating: %w", err)
	}

	stats, err := svc.WorkflowStatistics(tenant)
	if err != nil {
		return err
	}
	fmt.Println("\nfinal statistics:")
	return printJSON(stats)
}
