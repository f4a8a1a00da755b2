package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synctogit/synctogit/internal/service"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored backend credentials",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Ask for a new token and store it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.finish(a.login(cmd))
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.finish(a.logout(cmd))
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}

func (a *app) login(cmd *cobra.Command) error {
	desc, err := service.Lookup(a.cfg.Service.Name)
	if err != nil {
		return err
	}
	if !desc.NeedsToken {
		fmt.Fprintf(cmd.OutOrStdout(), "Backend %s does not use credentials\n", desc.Name)
		return nil
	}
	session := a.session()
	if session.Batch {
		return errors.New("login requires an interactive terminal")
	}

	if err := session.Forget(cmd.Context(), desc); err != nil {
		return err
	}
	if _, err := session.Token(cmd.Context(), desc); err != nil {
		if errors.Is(err, service.ErrUserCancelled) {
			return nil
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored token for %s\n", desc.Name)
	return nil
}

func (a *app) logout(cmd *cobra.Command) error {
	desc, err := service.Lookup(a.cfg.Service.Name)
	if err != nil {
		return err
	}
	if err := a.session().Forget(cmd.Context(), desc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed stored token for %s\n", desc.Name)
	return nil
}
