package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/intent"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <request>",
	Short: "Show the action a request maps to, without touching a share",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	b, err := intent.Marshal(intent.Classify(strings.Join(args, " ")))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
