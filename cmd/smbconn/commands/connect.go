package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbconn/cmd/smbconn/cmdutil"
	"github.com/marmos91/smbconn/internal/cli/output"
	"github.com/marmos91/smbconn/internal/cli/prompt"
	"github.com/marmos91/smbconn/pkg/config"
	"github.com/marmos91/smbconn/pkg/identity"
)

// EnvPassword supplies the password to 'smbconn connect' without a prompt.
const EnvPassword = "SMBCONN_PASSWORD"

var (
	connectUser        string
	connectPassword    string
	connectNTHash      string
	connectShareType   string
	connectMode        string
	connectShareMode   string
	connectPrivate     bool
	connectSingleShare bool
)

var connectCmd = &cobra.Command{
	Use:   "connect //server[/share]",
	Short: "Connect once and print the resulting objects",
	Long: `Open a session, and optionally a share, print what the manager holds
and disconnect again. Useful to check credentials and permissions before
adding a mount to the configuration.

The password is read from --password, $SMBCONN_PASSWORD or an
interactive prompt, in that order.

Examples:
  smbconn connect //fileserver/projects -u 'CORP\alice'
  smbconn connect //fileserver -u alice@corp.example.com --nt-hash 8846f7eaee8fb117ad06bdd830b7586c
  smbconn connect //printsrv/laser -u alice --type printer -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	f := connectCmd.Flags()
	f.StringVarP(&connectUser, "user", "u", "", `remote user, as user, DOMAIN\user or user@domain (empty for guest)`)
	f.StringVarP(&connectPassword, "password", "p", "", "password (less secure than the prompt)")
	f.StringVar(&connectNTHash, "nt-hash", "", "hex NT hash instead of a password")
	f.StringVar(&connectShareType, "type", "any", "share type (any|disk|printer|pipe|comm)")
	f.StringVar(&connectMode, "mode", "0700", `session mode in octal, "|exact" to require an identical session`)
	f.StringVar(&connectShareMode, "share-mode", "0755", "share mode in octal")
	f.BoolVar(&connectPrivate, "private", false, "create a private session")
	f.BoolVar(&connectSingleShare, "single-share", false, "create a session limited to one share")
}

func runConnect(cmd *cobra.Command, args []string) error {
	server, share, err := cmdutil.ParseUNC(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(cmdutil.Flags.ConfigFile)
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	acct, err := connectAccount(server)
	if err != nil {
		return cmdutil.HandleAbort(err)
	}

	mode, err := config.ParseOctalMode(connectMode)
	if err != nil {
		return fmt.Errorf("--mode: %w", err)
	}
	shareMode, err := config.ParseOctalMode(connectShareMode)
	if err != nil {
		return fmt.Errorf("--share-mode: %w", err)
	}

	mc := config.MountConfig{
		Name:        "connect",
		Server:      server,
		Share:       share,
		ShareType:   connectShareType,
		Account:     acct,
		Mode:        mode,
		ShareMode:   shareMode,
		Private:     connectPrivate,
		SingleShare: connectSingleShare,
	}
	spec, shareSpec, err := mc.Specs()
	if err != nil {
		return err
	}

	mgr, err := newManager(cfg)
	if err != nil {
		return err
	}
	cred, err := runAs(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sess, sh, err := mgr.LookupOrCreate(ctx, cred, spec, shareSpec)
	if err != nil {
		return fmt.Errorf("connect %s: %w", args[0], err)
	}

	records, snapErr := mgr.Snapshot(ctx)

	if sh != nil {
		_ = sh.Rele()
	}
	_ = sess.Rele()
	if err := mgr.Shutdown(ctx, true); err != nil {
		return err
	}
	if snapErr != nil {
		return snapErr
	}

	p, err := cmdutil.NewPrinter()
	if err != nil {
		return err
	}
	return p.Print(output.RecordTable(records))
}

// connectAccount assembles the remote account from the flags, the
// environment and, when needed, a password prompt.
func connectAccount(server string) (identity.Account, error) {
	user, domain := cmdutil.SplitPrincipal(connectUser)
	acct := identity.Account{User: user, Domain: domain, NTHash: connectNTHash}
	if acct.Anonymous() || acct.NTHash != "" {
		return acct, acct.Validate()
	}

	acct.Password = connectPassword
	if acct.Password == "" {
		acct.Password = os.Getenv(EnvPassword)
	}
	if acct.Password == "" {
		pw, err := prompt.Password(fmt.Sprintf("Password for %s on %s", acct.Principal(), server))
		if err != nil {
			return acct, err
		}
		acct.Password = pw
	}
	return acct, acct.Validate()
}
