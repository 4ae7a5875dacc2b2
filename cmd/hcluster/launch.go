package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch a new cluster",
	Long: `Launch a new cluster from the configuration file and flags.

The security groups are created if missing, then the quorum, primary,
standby, worker and auxiliary roles are launched and bootstrapped in that
order. The configuration is remembered under the cluster name.`,
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().String("name", "", "Cluster name and security group prefix")
	launchCmd.Flags().Int("quorum", 0, "Number of quorum nodes")
	launchCmd.Flags().Int("workers", 0, "Number of worker nodes")
	launchCmd.Flags().Int("aux", -1, "Number of auxiliary nodes")
	launchCmd.Flags().String("hbase-version", "", "HBase version, used to derive image labels")
	launchCmd.Flags().String("image-id", "", "Image id for every role, skipping label lookup")
	launchCmd.Flags().String("zone", "", "Availability zone")
	launchCmd.Flags().String("key-name", "", "Key pair name")
	launchCmd.Flags().Bool("kerberized", false, "Enable strong authentication after bootstrap")
	launchCmd.Flags().CountP("debug", "d", "Echo remote output (repeat for more)")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("name"); v != "" {
		cfg.Prefix = v
	}
	if v, _ := cmd.Flags().GetInt("quorum"); v > 0 {
		cfg.Quorum.Count = v
	}
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		cfg.Worker.Count = v
	}
	if v, _ := cmd.Flags().GetInt("aux"); v >= 0 {
		cfg.Aux.Count = v
	}
	if v, _ := cmd.Flags().GetString("hbase-version"); v != "" {
		cfg.Version = v
	}
	if v, _ := cmd.Flags().GetString("image-id"); v != "" {
		cfg.ImageID = v
	}
	if v, _ := cmd.Flags().GetString("zone"); v != "" {
		cfg.Zone = v
	}
	if v, _ := cmd.Flags().GetString("key-name"); v != "" {
		cfg.KeyName = v
	}
	if v, _ := cmd.Flags().GetBool("kerberized"); v {
		cfg.Kerberized = true
	}
	if v, _ := cmd.Flags().GetCount("debug"); v > 0 {
		cfg.Debug = v
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	c, err := e.reg.Register(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Launching cluster %s...\n", c.Name())
	if err := c.Launch(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nLaunch failed; run 'hcluster terminate %s' to release its nodes\n", c.Name())
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return printStatus(cmd.OutOrStdout(), c.Status())
}
