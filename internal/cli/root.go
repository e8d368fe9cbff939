// Package cli implements blinkctl, the BlinkText command-line client.
package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blinktext/internal/client"
)

// Version is set at build time with -ldflags.
var Version = "dev"

const defaultServer = "http://localhost:5001"

type app struct {
	server     string
	token      string
	configPath string
	jsonOutput bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// readPassword reads a secret without echo.
	readPassword func(prompt string) (string, error)
	// isTerminal reports whether stdin is interactive.
	isTerminal func() bool
}

// NewRootCommand builds the blinkctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	a.readPassword = a.terminalPassword
	a.isTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	return a.rootCommand()
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "blinkctl",
		Short: "Share self-destructing, client-encrypted texts",
		Long: `blinkctl encrypts text locally and shares it through a BlinkText server.
The server only ever stores ciphertext; links expire by time or by view count.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.resolveDefaults()
		},
	}

	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.server, "server", "", "Server base URL (env BLINKTEXT_SERVER)")
	root.PersistentFlags().StringVar(&a.token, "token", "", "Bearer token (env BLINKTEXT_TOKEN, else saved login)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output responses as JSON")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Server config file for admin commands")

	root.AddCommand(
		a.createCommand(),
		a.openCommand(),
		a.historyCommand(),
		a.deleteCommand(),
		a.registerCommand(),
		a.loginCommand(),
		a.logoutCommand(),
		a.migrateCommand(),
		a.sweepCommand(),
		a.versionCommand(),
	)
	return root
}

// Execute runs blinkctl and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func (a *app) resolveDefaults() {
	if a.server == "" {
		a.server = os.Getenv("BLINKTEXT_SERVER")
	}
	if a.server == "" {
		a.server = defaultServer
	}
	if a.token == "" {
		a.token = os.Getenv("BLINKTEXT_TOKEN")
	}
	if a.token == "" {
		a.token = loadToken()
	}
}

func (a *app) client() *client.Client {
	return client.New(a.server, a.token)
}

func (a *app) requireLogin() error {
	if a.token == "" {
		return errors.New("not logged in: run blinkctl login or pass --token")
	}
	return nil
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) terminalPassword(prompt string) (string, error) {
	fmt.Fprint(a.stderr, promptStyle.Render(prompt))
	defer fmt.Fprintln(a.stderr)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func tokenPath() string {
	if p := os.Getenv("BLINKTEXT_TOKEN_FILE"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "blinktext", "token")
}

func loadToken() string {
	p := tokenPath()
	if p == "" {
		return ""
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func saveToken(token string) error {
	p := tokenPath()
	if p == "" {
		return errors.New("no config directory for saving the token")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(token+"\n"), 0o600)
}

func removeToken() error {
	p := tokenPath()
	if p == "" {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
