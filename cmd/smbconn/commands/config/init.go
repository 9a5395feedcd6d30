package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbconn/cmd/smbconn/cmdutil"
	"github.com/marmos91/smbconn/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a sample configuration file with a freshly generated JWT secret.

By default the file is created at $XDG_CONFIG_HOME/smbconn/config.yaml.

Examples:
  smbconn config init
  smbconn config init --config /etc/smbconn/config.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := cmdutil.Flags.ConfigFile

	var err error
	if configPath != "" {
		err = config.InitConfigToPath(configPath, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add mounts, and admin users via 'smbconn config hash-password'")
	fmt.Println("  2. Check the file with: smbconn config validate")
	fmt.Println("  3. Start with: smbconn serve")
	return nil
}
