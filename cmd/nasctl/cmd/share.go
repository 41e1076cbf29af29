package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/listing"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/storage/smb"
)

const passwordEnv = "NAS_PASSWORD"

type shareFlags struct {
	host     string
	share    string
	user     string
	password string
}

var share shareFlags

func addShareFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&share.host, "host", "", "share host name or address")
	cmd.Flags().StringVar(&share.share, "share", "", "share name")
	cmd.Flags().StringVar(&share.user, "user", "", "share user name")
	cmd.Flags().StringVar(&share.password, "password", "", "share password (default $"+passwordEnv+")")
}

// credentials returns the share credentials from the flags, falling back
// to $NAS_PASSWORD for the password.
func (f shareFlags) credentials() (smb.Credentials, error) {
	c := smb.Credentials{Host: f.host, Share: f.share, Username: f.user, Password: f.password}
	if c.Password == "" {
		c.Password = os.Getenv(passwordEnv)
	}
	if c.Host == "" || c.Share == "" || c.Username == "" {
		return c, errors.New("--host, --share and --user are required for this request")
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func printFiles(w io.Writer, files []listing.FileEntry) {
	if len(files) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range files {
		size := humanize.IBytes(f.Size)
		if f.IsDirectory {
			size = "<DIR>"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Modified, size, f.Path)
	}
	tw.Flush()
}
