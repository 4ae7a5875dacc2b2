package remote

import (
	"context"

	"github.com/cuemby/hcluster/pkg/log"
)

// DryRun accepts every command and copy without contacting any host. It pairs
// with the in-memory provider, whose hosts do not exist.
type DryRun struct{}

func (DryRun) Execute(ctx context.Context, host, command string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Logger.Debug().
		Str("component", "remote").
		Str("host", host).
		Str("command", command).
		Msg("Dry run execute")
	return Completed(0, nil), nil
}

func (DryRun) CopyFile(ctx context.Context, host, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Logger.Debug().
		Str("component", "remote").
		Str("host", host).
		Str("local", localPath).
		Str("remote", remotePath).
		Msg("Dry run copy")
	return nil
}
