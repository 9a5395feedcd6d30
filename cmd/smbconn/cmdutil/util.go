// Package cmdutil provides shared utilities for smbconn commands.
package cmdutil

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marmos91/smbconn/internal/cli/credentials"
	"github.com/marmos91/smbconn/internal/cli/output"
	"github.com/marmos91/smbconn/internal/cli/prompt"
	"github.com/marmos91/smbconn/pkg/apiclient"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ConfigFile string
	ServerURL  string
	Token      string
	Output     string
	Color      string
}

// GetAuthenticatedClient returns an admin API client. --server and
// --token win over the stored credentials.
func GetAuthenticatedClient() (*apiclient.Client, error) {
	if Flags.ServerURL != "" && Flags.Token != "" {
		return apiclient.New(Flags.ServerURL).WithToken(Flags.Token), nil
	}

	store, err := credentials.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	server, err := store.ResolveServer(Flags.ServerURL)
	if err != nil {
		return nil, err
	}

	tok := Flags.Token
	if tok == "" {
		if tok, err = store.Token(server); err != nil {
			return nil, err
		}
	}
	return apiclient.New(server).WithToken(tok), nil
}

// GetOutputFormat returns the parsed --output flag.
func GetOutputFormat() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// NewPrinter returns a printer for stdout honoring --output and --color.
func NewPrinter() (*output.Printer, error) {
	return NewPrinterTo(os.Stdout)
}

// NewPrinterTo is NewPrinter for an arbitrary writer.
func NewPrinterTo(w io.Writer) (*output.Printer, error) {
	format, err := GetOutputFormat()
	if err != nil {
		return nil, err
	}
	color, err := output.ParseColor(Flags.Color, w)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(w, format, color), nil
}

// PrintSuccess prints a success message if the output format is table.
func PrintSuccess(msg string) {
	p, err := NewPrinter()
	if err != nil || p.Format() != output.FormatTable {
		return
	}
	p.Success(msg)
}

// RunWithConfirmation prompts (unless force is set) and then runs fn.
func RunWithConfirmation(question string, force bool, fn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(question, force)
	if err != nil {
		return HandleAbort(err)
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}
	return fn()
}

// HandleAbort checks if error is an abort (Ctrl+C) and prints a message.
// Returns nil for abort (user cancelled), otherwise returns the original error.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}

// ParseUNC splits //server/share or \\server\share. The share part is
// optional.
func ParseUNC(path string) (server, share string, err error) {
	p := strings.ReplaceAll(strings.TrimSpace(path), `\`, "/")
	if !strings.HasPrefix(p, "//") {
		return "", "", fmt.Errorf("invalid UNC path %q: expected //server[/share]", path)
	}
	parts := strings.Split(strings.Trim(p[2:], "/"), "/")
	switch {
	case parts[0] == "":
		return "", "", fmt.Errorf("invalid UNC path %q: missing server", path)
	case len(parts) > 2:
		return "", "", fmt.Errorf("invalid UNC path %q: paths below the share are not supported", path)
	case len(parts) == 2:
		return parts[0], parts[1], nil
	default:
		return parts[0], "", nil
	}
}

// SplitPrincipal splits DOMAIN\user and user@domain.
func SplitPrincipal(s string) (user, domain string) {
	if i := strings.IndexByte(s, '\\'); i >= 0 {
		return s[i+1:], s[:i]
	}
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// EmptyOr returns the value if not empty, otherwise returns the fallback.
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
