package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hcluster",
	Short: "hcluster - launch and manage HBase clusters on EC2",
	Long: `hcluster provisions multi-role HBase clusters on a cloud compute
provider: a ZooKeeper quorum, a primary and standby master, a pool of region
servers and an optional auxiliary pool.

Credentials are read from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY. Cluster
configurations are remembered by name so later commands can find them.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"hcluster version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Cluster configuration file (YAML)")
	flags.String("data-dir", defaultDataDir(), "Directory holding the cluster catalogue")
	flags.String("provider", "", "Provider override: ec2 or memory (dry run)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Log in JSON")
	flags.String("metrics-addr", "", "Serve /metrics, /health and /ready on this address")

	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(terminateCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(checkCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	jsonOutput, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.ParseLevel(level), JSONOutput: jsonOutput})

	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr != "" {
		ctx := cmd.Context()
		go func() {
			if err := metrics.Serve(ctx, addr, metrics.Health); err != nil {
				log.Logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
			}
		}()
		log.Logger.Info().Str("addr", addr).Msg("Serving metrics")
	}
	return nil
}
