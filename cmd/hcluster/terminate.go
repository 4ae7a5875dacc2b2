package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var terminateCmd = &cobra.Command{
	Use:   "terminate <name>",
	Short: "Terminate every node of a cluster",
	Long: `Terminate every node of a cluster and forget it. Security groups are
left in place for the next launch under the same name.`,
	Args: cobra.ExactArgs(1),
	RunE: runTerminate,
}

func init() {
	terminateCmd.Flags().Bool("keep", false, "Remember the cluster after terminating it")
}

func runTerminate(cmd *cobra.Command, args []string) error {
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

	fmt.Fprintf(cmd.OutOrStdout(), "Terminating cluster %s...\n", c.Name())
	if err := c.Terminate(ctx); err != nil {
		return err
	}

	if keep, _ := cmd.Flags().GetBool("keep"); !keep {
		if err := e.reg.Forget(c.Name()); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s terminated\n", c.Name())
	return nil
}
