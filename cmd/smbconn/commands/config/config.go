// Package config implements configuration management subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage smbconn configuration files.

Subcommands:
  init           Write a sample configuration file
  show           Display the effective configuration
  validate       Validate a configuration file
  schema         Generate a JSON schema
  hash-password  Hash an admin API password for the users list`,
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(hashPasswordCmd)
	Cmd.AddCommand(schemaCmd)
}
