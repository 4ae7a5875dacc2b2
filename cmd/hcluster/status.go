package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cuemby/hcluster/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show cluster status",
	Long: `Show the status of one cluster, or of every remembered cluster when no
name is given. Node state is read from the provider.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var syncCmd = &cobra.Command{
	Use:   "sync <name>",
	Short: "Refresh a cluster from the provider and list its nodes",
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	if len(args) == 1 {
		c, err := e.lookup(ctx, args[0])
		if err != nil {
			return err
		}
		return printStatus(cmd.OutOrStdout(), c.Status())
	}

	statuses, syncErr := e.reg.SyncAll(ctx)
	if len(statuses) == 0 && syncErr == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No clusters")
		return nil
	}
	printStatuses(cmd.OutOrStdout(), statuses)
	return syncErr
}

func runSync(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	c, err := e.lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Role", "Instance", "State", "Public Address", "Private Address", "Zone"})
	table.SetBorder(false)
	for _, role := range types.LaunchOrder {
		for _, n := range c.Nodes(role) {
			table.Append([]string{string(role), n.ID, string(n.State), n.PublicAddress, n.PrivateAddress, n.Zone})
		}
	}
	table.Render()
	return nil
}

func printStatus(w io.Writer, st types.Status) error {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetColumnSeparator(":")
	table.AppendBulk([][]string{
		{"Name", st.Name},
		{"State", string(st.State)},
		{"Quorum", strconv.Itoa(st.QuorumCount)},
		{"Workers", strconv.Itoa(st.WorkerCount)},
		{"Auxiliary", strconv.Itoa(st.AuxCount)},
		{"Primary", st.PrimaryAddress},
		{"Primary Instance", st.PrimaryID},
		{"Launched", formatTime(st.LaunchTime)},
	})
	table.Render()
	return nil
}

func printStatuses(w io.Writer, statuses []types.Status) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "State", "Quorum", "Workers", "Aux", "Primary", "Launched"})
	table.SetBorder(false)
	for _, st := range statuses {
		table.Append([]string{
			st.Name,
			string(st.State),
			strconv.Itoa(st.QuorumCount),
			strconv.Itoa(st.WorkerCount),
			strconv.Itoa(st.AuxCount),
			st.PrimaryAddress,
			formatTime(st.LaunchTime),
		})
	}
	table.Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
