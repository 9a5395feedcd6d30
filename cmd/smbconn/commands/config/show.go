package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbconn/cmd/smbconn/cmdutil"
	"github.com/marmos91/smbconn/internal/cli/output"
	"github.com/marmos91/smbconn/pkg/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults and SMBCONN_* overrides.
Passwords and NT hashes are never printed.

Examples:
  smbconn config show
  smbconn config show -o json`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cmdutil.Flags.ConfigFile)
	if err != nil {
		return err
	}
	redact(cfg)

	format, err := cmdutil.GetOutputFormat()
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		return output.PrintJSON(os.Stdout, cfg)
	}
	return output.PrintYAML(os.Stdout, cfg)
}

// redact blanks secrets that YAML output would otherwise include.
func redact(cfg *config.Config) {
	if cfg.Admin.JWT.Secret != "" {
		cfg.Admin.JWT.Secret = "<redacted>"
	}
	for i := range cfg.Mounts {
		cfg.Mounts[i].Account.Password = ""
		cfg.Mounts[i].Account.NTHash = ""
	}
}
