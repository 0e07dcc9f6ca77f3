package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adworks/ad-portal/internal/api/dto"
	"github.com/adworks/ad-portal/internal/client"
)

const passwordEnv = "ADCTL_PASSWORD"

// NewLoginCommand signs in and stores the access token.
func NewLoginCommand() *cobra.Command {
	var creds dto.LoginRequest

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Password == "" {
				creds.Password = os.Getenv(passwordEnv)
			}

			container, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := container.Sessions.Login(cmd.Context(), creds); err != nil {
				return errors.New(container.Sessions.Snapshot().Error)
			}

			user := container.Sessions.Snapshot().User
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s). Landing page: %s\n",
				user.FullName, user.Role().DisplayName(), user.Role().LandingRoute())
			return nil
		},
	}

	cmd.Flags().StringVarP(&creds.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "account password (or set "+passwordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// NewRegisterCommand creates an account.
func NewRegisterCommand() *cobra.Command {
	var req dto.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a customer account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Password == "" {
				req.Password = os.Getenv(passwordEnv)
			}

			container, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			message, err := container.Sessions.Register(cmd.Context(), req)
			if err != nil {
				return errors.New(container.Sessions.Snapshot().Error)
			}
			if message == "" {
				message = "Account created"
			}
			fmt.Fprintln(cmd.OutOrStdout(), message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "account password (or set "+passwordEnv+")")
	cmd.Flags().StringVarP(&req.FullName, "full-name", "n", "", "full name")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "phone number")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("full-name")
	return cmd
}

// NewLogoutCommand ends the session. The local token is removed even when
// the backend cannot be reached.
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := container.Sessions.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

// NewWhoamiCommand restores the session from the stored token and prints it.
func NewWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := container.Sessions.InitializeAuth(cmd.Context()); err != nil && errors.Is(err, client.ErrSessionExpired) {
				return errors.New("session expired, run adctl login")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(container.Sessions.Snapshot())
		},
	}
}
