package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/hcluster/pkg/remote"
)

var execCmd = &cobra.Command{
	Use:   "exec <name> -- <command>...",
	Short: "Run a command on the cluster primary",
	Long: `Run a shell command on the cluster's primary node and stream its output.
The command's exit status becomes hcluster's.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
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

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	return c.Exec(ctx, strings.Join(args[1:], " "), func(chunk remote.Chunk) {
		if chunk.Stream == remote.Stderr {
			_, _ = stderr.Write(chunk.Data)
			return
		}
		_, _ = stdout.Write(chunk.Data)
	})
}
