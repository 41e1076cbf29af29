package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/dispatch"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/intent"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/storage/smb"
)

var confirmDelete bool

var chatCmd = &cobra.Command{
	Use:   "chat <request>",
	Short: "Run a plain-English request against a share",
	Long: `Classifies the request and runs it against the share given by --host,
--share and --user. Requests that need no share (greetings, help) run
without credentials. Deletes print a confirmation prompt unless --confirm
is given.`,
	Example: `  nasctl chat --host nas --share media --user pi "show me images from march 2024"
  NAS_PASSWORD=secret nasctl chat --host nas --share media --user pi --confirm "delete old_backup.txt"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	addShareFlags(chatCmd)
	chatCmd.Flags().BoolVar(&confirmDelete, "confirm", false, "carry out delete requests")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	action := intent.Classify(strings.Join(args, " "))

	var creds smb.Credentials
	if dispatch.NeedsShare(action, confirmDelete) {
		var err error
		if creds, err = share.credentials(); err != nil {
			return err
		}
	}

	d := dispatch.New(smb.NewClient(newExecutor()))
	res, err := d.Dispatch(cmd.Context(), action, creds, confirmDelete)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Message)
	printFiles(out, res.Files)
	return nil
}
