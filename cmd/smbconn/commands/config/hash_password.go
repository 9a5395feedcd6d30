package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbconn/cmd/smbconn/cmdutil"
	"github.com/marmos91/smbconn/internal/cli/prompt"
	"github.com/marmos91/smbconn/pkg/identity"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash an admin API password",
	Long: `Prompt for a password and print its bcrypt hash, for the
admin.users[].password_hash setting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := prompt.NewPassword(identity.MinPasswordLength)
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
		hash, err := identity.HashPassword(pw)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}
