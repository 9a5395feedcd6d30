package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbconn/cmd/smbconn/cmdutil"
	"github.com/marmos91/smbconn/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.MustLoad(cmdutil.Flags.ConfigFile)
		if err != nil {
			return err
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Configuration is valid (%d mounts, admin API %s)",
			len(cfg.Mounts), enabled(cfg.Admin.Enabled)))
		return nil
	},
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
