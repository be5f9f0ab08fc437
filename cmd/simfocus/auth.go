package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/plf1996/simfocus-go/api"
	"github.com/plf1996/simfocus-go/dialog"
)

var (
	loginEmail    string
	loginPassword string
	loginKeycloak bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		ctx := cmd.Context()

		if loginKeycloak {
			return keycloakLogin(ctx, a)
		}

		email, password := loginEmail, loginPassword
		if email == "" {
			if email, err = prompt("Email: "); err != nil {
				return err
			}
		}
		if password == "" {
			if password, err = prompt("Password: "); err != nil {
				return err
			}
		}
		user, err := a.store.Login(ctx, api.Credentials{Email: email, Password: password})
		if err != nil {
			return err
		}
		fmt.Println("Logged in.")
		return printProfile(user)
	},
}

// keycloakLogin dispatches the redirect for the configured auth mode, then
// completes the session from the token the user brings back out of the
// browser.
func keycloakLogin(ctx context.Context, a *app) error {
	if err := a.store.LoginWithKeycloak(ctx); err != nil {
		return err
	}
	if a.store.IsAuthenticated() {
		// silent authentication succeeded, no browser round trip needed
		fmt.Println("Logged in via Keycloak.")
		return printProfile(a.store.User())
	}

	token, err := prompt("Paste the token from the /auth/success page: ")
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("no token provided")
	}
	if err := a.store.HandleKeycloakCallback(ctx, token); err != nil {
		return err
	}
	fmt.Println("Logged in via Keycloak.")
	return printProfile(a.store.User())
}

var (
	registerEmail    string
	registerPassword string
	registerUsername string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		user, err := a.store.Register(cmd.Context(), api.Registration{
			Email:    registerEmail,
			Password: registerPassword,
			Username: registerUsername,
		})
		if err != nil {
			return err
		}
		fmt.Println("Registered and logged in.")
		return printProfile(user)
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.store.FetchUser(cmd.Context()); err != nil {
			return err
		}
		if !a.store.IsAuthenticated() {
			fmt.Println("Not logged in.")
			return nil
		}
		return printProfile(a.store.User())
	},
}

var updateFields []string

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the current user's profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := map[string]interface{}{}
		for _, field := range updateFields {
			key, value, found := strings.Cut(field, "=")
			if !found || key == "" {
				return fmt.Errorf("invalid --set %q, want key=value", field)
			}
			patch[key] = value
		}
		if len(patch) == 0 {
			return fmt.Errorf("nothing to update, pass --set key=value")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		user, err := a.store.UpdateUser(cmd.Context(), patch)
		if err != nil {
			return err
		}
		return printProfile(user)
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the access token through Keycloak",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if a.adapter == nil {
			return fmt.Errorf("keycloak is not enabled")
		}
		a.adapter.Init(cmd.Context())
		if !a.adapter.UpdateToken(cmd.Context(), 0) {
			return fmt.Errorf("token refresh failed")
		}
		fmt.Println("Token refreshed.")
		return nil
	},
}

var logoutForce bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		ctx := cmd.Context()

		if !logoutForce {
			ok, err := askConfirm(ctx, "Log out and clear stored credentials?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}
		if err := a.store.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

// askConfirm runs a dialog confirmation with the terminal as its presenting
// shell.
func askConfirm(ctx context.Context, message string) (bool, error) {
	var coord dialog.Coordinator

	type result struct {
		ok  bool
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		ok, err := coord.Confirm(ctx, message, dialog.WithConfirmType("danger"))
		resCh <- result{ok: ok, err: err}
	}()

	for coord.ActiveModal() == nil {
		time.Sleep(time.Millisecond)
	}
	modal := coord.ActiveModal()
	answer, err := prompt(fmt.Sprintf("%s [y/N]: ", modal.Message))
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		coord.Resolve()
	default:
		coord.Dismiss()
	}
	res := <-resCh
	return res.ok, res.err
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
	loginCmd.Flags().BoolVar(&loginKeycloak, "keycloak", false, "log in through Keycloak")

	registerCmd.Flags().StringVar(&registerEmail, "email", "", "account email")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "account password")
	registerCmd.Flags().StringVar(&registerUsername, "username", "", "display name")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("password")

	updateCmd.Flags().StringArrayVar(&updateFields, "set", nil, "field to update, key=value (repeatable)")

	logoutCmd.Flags().BoolVarP(&logoutForce, "force", "f", false, "skip confirmation")
}
