package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blinktext/internal/models"
)

func (a *app) registerCommand() *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := a.readPassword("Password: ")
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}

			res, err := a.client().Register(cmd.Context(), models.UserCreateRequest{
				Name:     name,
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}
			return a.finishLogin(res)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) loginCommand() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := a.readPassword("Password: ")
			if err != nil {
				return err
			}

			res, err := a.client().Login(cmd.Context(), models.UserLoginRequest{
				Email:    strings.TrimSpace(email),
				Password: password,
			})
			if err != nil {
				return err
			}
			return a.finishLogin(res)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) finishLogin(res *models.UserLoginResponse) error {
	if err := saveToken(res.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	a.token = res.Token

	if a.jsonOutput {
		return a.printJSON(res)
	}
	who := res.User.Email
	if res.User.Name != "" {
		who = res.User.Name + " <" + res.User.Email + ">"
	}
	fmt.Fprintln(a.stderr, successStyle.Render("✓ Logged in as "+who))
	return nil
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session token and forget it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.token != "" {
				if err := a.client().Logout(cmd.Context()); err != nil {
					fmt.Fprintln(a.stderr, mutedStyle.Render("server logout failed: "+err.Error()))
				}
			}
			if err := removeToken(); err != nil {
				return err
			}
			a.token = ""
			fmt.Fprintln(a.stderr, successStyle.Render("✓ Logged out"))
			return nil
		},
	}
}
