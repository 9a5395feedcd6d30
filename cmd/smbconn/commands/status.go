package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbconn/cmd/smbconn/cmdutil"
	"github.com/marmos91/smbconn/internal/cli/credentials"
	"github.com/marmos91/smbconn/internal/cli/output"
	"github.com/marmos91/smbconn/pkg/apiclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of a running smbconn",
	Long: `Query the unauthenticated health endpoint of the admin API.

Examples:
  smbconn status --server http://localhost:8080
  smbconn status -o json`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	server := cmdutil.Flags.ServerURL
	if server == "" {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}
		if server, err = store.ResolveServer(""); err != nil {
			return err
		}
	}

	h, err := apiclient.New(server).Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("server %s is not reachable: %w", server, err)
	}

	p, err := cmdutil.NewPrinter()
	if err != nil {
		return err
	}
	if p.Format() != output.FormatTable {
		return p.Print(h)
	}
	p.Success(fmt.Sprintf("smbconn at %s is %s", server, h.Status))
	return output.SimpleTable(os.Stdout, [][2]string{
		{"Started", output.LocalTime(h.Data.StartedAt)},
		{"Uptime", output.Uptime(h.UptimeDuration())},
		{"Sessions", strconv.Itoa(h.Data.Sessions)},
	})
}
