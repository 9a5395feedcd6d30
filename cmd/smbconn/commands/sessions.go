package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbconn/cmd/smbconn/cmdutil"
	"github.com/marmos91/smbconn/internal/cli/output"
)

var forgetForce bool

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sessions"},
	Short:   "Inspect and manage sessions of a running smbconn",
	Long: `Inspect and manage the sessions held by 'smbconn serve' through its
admin API. Run 'smbconn login' first.

Examples:
  smbconn session list
  smbconn session get 3
  smbconn session reconnect 3
  smbconn session forget 3 --share projects
  smbconn session forget 3 --force`,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions and their shares",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}
		records, err := client.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		p, err := cmdutil.NewPrinter()
		if err != nil {
			return err
		}
		return p.Print(output.RecordTable(records))
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one session and its shares",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}
		records, err := client.GetSession(cmd.Context(), id)
		if err != nil {
			return err
		}
		p, err := cmdutil.NewPrinter()
		if err != nil {
			return err
		}
		return p.Print(output.RecordTable(records))
	},
}

var sessionReconnectCmd = &cobra.Command{
	Use:   "reconnect <id>",
	Short: "Re-establish a session; its shares reconnect on next use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}
		if err := client.ReconnectSession(cmd.Context(), id); err != nil {
			return err
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Session %d reconnected", id))
		return nil
	},
}

var forgetShare string

var sessionForgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Unlink a session, or one of its shares",
	Long: `Unlink a session and all of its shares, or with --share only that
share. Callers that still hold a reference keep working with it; the
object is torn down when the last one lets go and new lookups no longer
find it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		what := fmt.Sprintf("session %d", id)
		if forgetShare != "" {
			what = fmt.Sprintf("share %q of session %d", forgetShare, id)
		}
		return cmdutil.RunWithConfirmation("Forget "+what+"?", forgetForce, func() error {
			if forgetShare != "" {
				err = client.ForgetShare(cmd.Context(), id, forgetShare)
			} else {
				err = client.ForgetSession(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			cmdutil.PrintSuccess("Forgot " + what)
			return nil
		})
	},
}

func init() {
	sessionForgetCmd.Flags().StringVar(&forgetShare, "share", "", "forget only this share")
	sessionForgetCmd.Flags().BoolVarP(&forgetForce, "force", "f", false, "skip confirmation")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionGetCmd)
	sessionCmd.AddCommand(sessionReconnectCmd)
	sessionCmd.AddCommand(sessionForgetCmd)
}

func parseSessionID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid session id %q", s)
	}
	return id, nil
}
