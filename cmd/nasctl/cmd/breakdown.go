package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/listing"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/storage/smb"
)

var breakdownCmd = &cobra.Command{
	Use:   "breakdown [path]",
	Short: "Show storage used per media category below a path",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBreakdown,
}

func init() {
	addShareFlags(breakdownCmd)
	rootCmd.AddCommand(breakdownCmd)
}

func runBreakdown(cmd *cobra.Command, args []string) error {
	creds, err := share.credentials()
	if err != nil {
		return err
	}
	root := ""
	if len(args) == 1 {
		root = args[0]
	}

	var totals map[listing.Category]uint64
	client := smb.NewClient(newExecutor())
	err = client.WithSession(cmd.Context(), creds, func(s *smb.Session) error {
		var err error
		totals, err = s.Breakdown(cmd.Context(), root)
		return err
	})
	if err != nil {
		return err
	}

	var total uint64
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, c := range listing.Categories {
		fmt.Fprintf(tw, "%s\t%s\n", c, humanize.IBytes(totals[c]))
		total += totals[c]
	}
	fmt.Fprintf(tw, "total\t%s\n", humanize.IBytes(total))
	return tw.Flush()
}
