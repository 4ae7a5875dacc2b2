package main

import (
	"errors"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cuemby/hcluster/pkg/health"
	"github.com/cuemby/hcluster/pkg/types"
)

var errUnhealthy = errors.New("cluster has failing checks")

var checkCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Probe the services of a running cluster",
	Long: `Probe every node of a cluster: a remote session on each node, the
ZooKeeper port on quorum nodes, and the RPC ports and info pages of the
masters and region servers. Exits non-zero if any check fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Duration("timeout", 10*time.Second, "Timeout for each check")
	checkCmd.Flags().Bool("no-remote", false, "Skip remote session checks")
}

func runCheck(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	c, err := e.lookup(ctx, args[0])
	if err != nil {
		return err
	}

	cfg := health.DefaultConfig()
	cfg.Timeout, _ = cmd.Flags().GetDuration("timeout")
	if skip, _ := cmd.Flags().GetBool("no-remote"); !skip {
		cfg.Channel = e.channel
	}

	var probes []health.Probe
	for _, role := range types.LaunchOrder {
		for _, n := range c.Nodes(role) {
			probes = append(probes, health.ProbesFor(role, n, cfg)...)
		}
	}
	reports := health.Run(ctx, probes, cfg)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Role", "Instance", "Service", "Check", "Healthy", "Message"})
	table.SetBorder(false)
	for _, r := range reports {
		healthy := "yes"
		if !r.Healthy {
			healthy = "NO"
		}
		table.Append([]string{string(r.Role), r.NodeID, r.Service, string(r.Checker.Type()), healthy, r.Message})
	}
	table.Render()

	if !health.Healthy(reports) {
		return errUnhealthy
	}
	return nil
}
