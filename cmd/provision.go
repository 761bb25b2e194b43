package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fiberline/switchyard/internal/orchestration"
)

var provisionReq orchestration.ProvisionSubscriberRequest

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision a subscriber end to end",
	Long: `Provision a subscriber: create the service instance record and run the
provision_subscriber workflow over it. A failed run compensates in reverse
and settles the instance in failed with its resources released.

Example:
  switchyard provision -t tenant-1 --plan plan-fiber-1g --email jo@example.net \
    --circuit olt1/1/3/7 --service-vlan 210 --auto-activate`,
	RunE: runProvision,
}

var (
	deprovisionTenant   string
	deprovisionInstance string
	deprovisionReason   string
)

var deprovisionCmd = &cobra.Command{
	Use:   "deprovision <subscriber-id>",
	Short: "Tear a subscriber down",
	Long: `Run the deprovision_subscriber workflow for a subscriber and terminate the
service instance on success. Without --instance the newest instance for the
subscriber is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeprovision,
}

func init() {
	rootCmd.AddCommand(provisionCmd, deprovisionCmd)

	f := provisionCmd.Flags()
	f.StringVarP(&provisionReq.TenantID, "tenant", "t", "", "tenant identifier (required)")
	_ = provisionCmd.MarkFlagRequired("tenant")
	f.StringVar(&provisionReq.PlanID, "plan", "", "service plan identifier (required)")
	_ = provisionCmd.MarkFlagRequired("plan")
	f.StringVar(&provisionReq.CustomerID, "customer", "", "existing customer identifier")
	f.StringVar(&provisionReq.Email, "email", "", "customer email (creates the customer when --customer is absent)")
	f.StringVar(&provisionReq.Name, "name", "", "service instance display name")
	f.StringVar(&provisionReq.ServiceType, "service-type", "", "service type (e.g. fiber)")
	f.StringVar(&provisionReq.ServiceLocation, "location", "", "service location")
	f.IntVar(&provisionReq.ServiceVLAN, "service-vlan", 0, "outer (service) VLAN")
	f.IntVar(&provisionReq.InnerVLAN, "inner-vlan", 0, "inner VLAN for QinQ")
	f.StringVar(&provisionReq.CircuitID, "circuit", "", "access circuit identifier")
	f.StringVar(&provisionReq.RemoteID, "remote-id", "", "DHCP option 82 remote id")
	f.StringVar(&provisionReq.StaticIPv4, "static-ipv4", "", "request a specific IPv4 address")
	f.StringVar(&provisionReq.StaticIPv6, "static-ipv6", "", "request a specific IPv6 prefix (CIDR)")
	f.StringVar(&provisionReq.IPv6Mode, "ipv6-mode", "", "ipv6 assignment mode (none|slaac|dhcpv6|prefix_delegation|dual_stack)")
	f.IntVar(&provisionReq.IPv6PrefixLength, "prefix-length", 0, "delegated IPv6 prefix length (48-64)")
	f.StringVar(&provisionReq.IPv4PoolID, "ipv4-pool", "", "IPAM IPv4 pool")
	f.StringVar(&provisionReq.IPv6PoolID, "ipv6-pool", "", "IPAM IPv6 pool")
	f.StringVar(&provisionReq.RadiusUsername, "radius-username", "", "RADIUS username (generated when empty)")
	f.StringVar(&provisionReq.CPEDeviceID, "cpe-device", "", "CPE device identifier")
	f.StringSliceVar(&provisionReq.Equipment, "equipment", nil, "equipment identifiers")
	f.BoolVar(&provisionReq.AutoActivate, "auto-activate", false, "activate the instance after a completed run")
	f.StringVar(&provisionReq.Initiator, "initiator", "", "who initiated the run")
	f.BoolVar(&provisionReq.Async, "async", false, "queue the run and return immediately")

	deprovisionCmd.Flags().StringVarP(&deprovisionTenant, "tenant", "t", "", "tenant identifier (required)")
	_ = deprovisionCmd.MarkFlagRequired("tenant")
	deprovisionCmd.Flags().StringVar(&deprovisionInstance, "instance", "", "service instance to terminate")
	deprovisionCmd.Flags().StringVar(&deprovisionReason, "reason", "", "termination reason")
}

func runProvision(cmd *cobra.Command, _ []string) error {
	if provisionReq.CustomerID == "" && provisionReq.Email == "" {
		return fmt.Errorf("one of --customer or --email is required")
	}

	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := svc.ProvisionSubscriber(cmd.Context(), provisionReq)
	return printRunOutcome(resp, err)
}

func runDeprovision(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := svc.DeprovisionSubscriber(cmd.Context(), orchestration.DeprovisionSubscriberRequest{
		TenantID:          deprovisionTenant,
		SubscriberID:      args[0],
		ServiceInstanceID: deprovisionInstance,
		Reason:            deprovisionReason,
	})
	return printRunOutcome(resp, err)
}
