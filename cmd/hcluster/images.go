package main

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cuemby/hcluster/pkg/images"
)

var imagesCmd = &cobra.Command{
	Use:   "images [label]",
	Short: "List images",
	Long: `List the account's own images, or every visible image whose name matches
label. Listing own images needs AWS_ACCOUNT_ID.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImages,
}

func runImages(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	gw, _, err := newTransport(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	label := ""
	if len(args) == 1 {
		label = args[0]
	}
	imgs, err := images.NewResolver(gw, cfg.Credentials.AccountID).Search(cmd.Context(), label)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Image", "Name", "Owner", "State"})
	table.SetBorder(false)
	for _, img := range imgs {
		table.Append([]string{img.ID, img.Name, img.OwnerID, img.State})
	}
	table.Render()
	return nil
}
