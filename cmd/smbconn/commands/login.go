package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbconn/cmd/smbconn/cmdutil"
	"github.com/marmos91/smbconn/internal/cli/credentials"
	"github.com/marmos91/smbconn/internal/cli/prompt"
	"github.com/marmos91/smbconn/pkg/apiclient"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with a running smbconn admin API",
	Long: `Authenticate with the admin API of 'smbconn serve' and store the
token. On first login the server URL is required; later logins reuse it.

Examples:
  smbconn login --server http://localhost:8080 --username admin
  smbconn login`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to initialize credential store: %w", err)
		}
		server, err := store.ResolveServer(cmdutil.Flags.ServerURL)
		if err != nil {
			return err
		}
		if err := store.Clear(server); err != nil {
			return err
		}
		cmdutil.PrintSuccess("Logged out of " + server)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password")
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	server, err := store.ResolveServer(cmdutil.Flags.ServerURL)
	if err != nil {
		return err
	}

	username := loginUsername
	if username == "" {
		def := ""
		if e, ok := store.Get(server); ok {
			def = e.Username
		}
		if username, err = prompt.Input("Username", def); err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	password := loginPassword
	if password == "" {
		if password, err = prompt.Password("Password"); err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	fmt.Printf("Logging in to %s as %s...\n", server, username)
	tok, err := apiclient.New(server).Login(cmd.Context(), username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := store.Save(server, &credentials.Entry{
		Username:    username,
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt,
	}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("Logged in. Token valid for %s.", tok.ExpiresInDuration()))
	return nil
}
