package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/blinktext/internal/client"
	"github.com/blinktext/internal/crypto"
	"github.com/blinktext/internal/models"
)

type createOptions struct {
	file      string
	expires   int
	expiresAt string
	maxViews  int
	viewOnce  bool
	protect   bool
	markdown  bool
	copyLink  bool
}

func (a *app) createCommand() *cobra.Command {
	var opts createOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Encrypt text locally and create a share link",
		Long: `Reads text from --file or STDIN, encrypts it with a fresh random key
and uploads only the ciphertext. The key travels with the text so anyone with
the link (and the password, if set) can read it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCreate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read text from file instead of STDIN")
	cmd.Flags().IntVar(&opts.expires, "expires", 60, "Expiry in minutes")
	cmd.Flags().StringVar(&opts.expiresAt, "expires-at", "", "Absolute expiry (RFC 3339), overrides --expires")
	cmd.Flags().IntVar(&opts.maxViews, "max-views", 0, "Delete after this many views (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.viewOnce, "view-once", false, "Burn after the first read")
	cmd.Flags().BoolVar(&opts.protect, "protect", false, "Require a password to read (prompted, or BLINKTEXT_PASSWORD)")
	cmd.Flags().BoolVar(&opts.markdown, "markdown", false, "Render as markdown in the web viewer")
	cmd.Flags().BoolVar(&opts.copyLink, "copy", false, "Copy the link to the clipboard")
	return cmd
}

func (a *app) runCreate(cmd *cobra.Command, opts createOptions) error {
	plaintext, err := a.readText(opts.file)
	if err != nil {
		return err
	}
	if strings.TrimSpace(plaintext) == "" {
		return errors.New("text cannot be empty")
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	ciphertext, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return err
	}

	req := models.CreateTextRequest{
		Content:           ciphertext,
		EncryptionKey:     key,
		ExpirationMinutes: opts.expires,
		CustomExpiryDate:  opts.expiresAt,
		ViewOnce:          opts.viewOnce,
		IsMarkdown:        opts.markdown,
	}
	if opts.maxViews > 0 {
		mv := opts.maxViews
		req.MaxViews = &mv
	}
	if opts.protect {
		password := os.Getenv("BLINKTEXT_PASSWORD")
		if password == "" {
			password, err = a.readPassword("Password: ")
			if err != nil {
				return err
			}
		}
		if password == "" {
			return errors.New("password cannot be empty")
		}
		req.IsProtected = true
		req.Password = password
	}

	res, err := a.client().Create(cmd.Context(), req)
	if err != nil {
		return err
	}

	if opts.copyLink {
		if err := clipboard.WriteAll(res.ShareURL); err != nil {
			fmt.Fprintln(a.stderr, mutedStyle.Render("could not copy to clipboard: "+err.Error()))
		}
	}

	if a.jsonOutput {
		return a.printJSON(res)
	}

	fmt.Fprintln(a.stderr, successStyle.Render("✓ Text encrypted. Share link:"))
	fmt.Fprintln(a.stdout, linkStyle.Render(res.ShareURL))
	fmt.Fprintln(a.stderr, mutedStyle.Render(describePolicy(res.ExpiresAt, req)))
	return nil
}

func describePolicy(expiresAt time.Time, req models.CreateTextRequest) string {
	parts := []string{"Expires " + expiresAt.Local().Format(time.RFC1123)}
	switch {
	case req.ViewOnce:
		parts = append(parts, "burns after one view")
	case req.MaxViews != nil:
		parts = append(parts, fmt.Sprintf("max %d views", *req.MaxViews))
	}
	if req.IsProtected {
		parts = append(parts, "password protected")
	}
	return strings.Join(parts, " | ")
}

func (a *app) readText(file string) (string, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	if a.isTerminal() {
		fmt.Fprintln(a.stderr, promptStyle.Render("Enter text, finish with Ctrl+D:"))
	}
	b, err := io.ReadAll(a.stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}

func (a *app) openCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open <link|token>",
		Short: "Fetch, decrypt and print a shared text",
		Long: `Fetches the text, consuming one view, and decrypts it locally.
View-once texts are destroyed on the server by this call.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := client.TokenFromLink(args[0])
			c := a.client()

			password := os.Getenv("BLINKTEXT_PASSWORD")
			res, err := c.Read(cmd.Context(), token, password)

			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized && password == "" {
				password, err = a.readPassword("Password: ")
				if err != nil {
					return err
				}
				res, err = c.Read(cmd.Context(), token, password)
			}
			if err != nil {
				return err
			}

			plaintext, err := crypto.Decrypt(res.Content, res.EncryptionKey)
			if err != nil {
				return err
			}

			if a.jsonOutput {
				res.Content = plaintext
				res.EncryptionKey = ""
				return a.printJSON(res)
			}

			fmt.Fprint(a.stdout, plaintext)
			if !strings.HasSuffix(plaintext, "\n") {
				fmt.Fprintln(a.stdout)
			}

			switch {
			case res.IsDeleted:
				fmt.Fprintln(a.stderr, burnStyle.Render("🔥 Text burned. This link no longer works."))
			case res.RemainingViews != nil:
				fmt.Fprintln(a.stderr, mutedStyle.Render(fmt.Sprintf("%d view(s) left", *res.RemainingViews)))
			}
			if res.IsExpiringSoon && !res.IsDeleted {
				fmt.Fprintln(a.stderr, mutedStyle.Render("Expires "+res.ExpiresAt.Local().Format(time.Kitchen)))
			}
			return nil
		},
	}
}

func (a *app) historyCommand() *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the texts you created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}

			res, err := a.client().History(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(res)
			}

			fmt.Fprintln(a.stdout, titleStyle.Render(fmt.Sprintf("Your texts (page %d of %d, %d total)", res.Page, max(res.Pages, 1), res.Total)))
			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTOKEN\tVIEWS\tEXPIRES\tSTATUS")
			for _, t := range res.Data {
				views := fmt.Sprintf("%d", t.ViewCount)
				if t.MaxViews != nil {
					views = fmt.Sprintf("%d/%d", t.ViewCount, *t.MaxViews)
				}
				status := t.Status
				if style, ok := statusStyles[status]; ok {
					status = style.Render(status)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.AccessToken, views, t.ExpiresAt.Local().Format("2006-01-02 15:04"), status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 50, "Items per page (max 100)")
	return cmd
}

func (a *app) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one of your texts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			if err := a.client().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.stderr, successStyle.Render("✓ Text deleted"))
			return nil
		},
	}
}
