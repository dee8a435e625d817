package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wanderlore/wanderlore-go/internal/identity"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and store session credentials",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogin,
	}
}

func newSignupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signup <username>",
		Short: "Create a new account",
		Args:  cobra.ExactArgs(1),
		RunE:  runSignup,
	}
}

func newConfirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <username> [code]",
		Short: "Confirm a new account with the emailed verification code",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runConfirm,
	}
	cmd.Flags().Bool("resend", false, "resend the verification code instead of confirming")

	return cmd
}

func newForgotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forgot <username>",
		Short: "Reset a forgotten password",
		Long:  "Request a password reset code, or complete the reset with --code and a new password.",
		Args:  cobra.ExactArgs(1),
		RunE:  runForgot,
	}
	cmd.Flags().String("code", "", "reset code received by email; completes the reset")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove stored credentials",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user and session state",
		RunE:  runWhoami,
	}
}

func newDeleteAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Permanently delete the signed-in account",
		RunE:  runDeleteAccount,
	}
	cmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	return cmd
}

// readPassword prompts on stderr and reads one line from stdin. Prompts go
// to stderr so piped stdout stays clean.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	reader := bufio.NewReader(os.Stdin)

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func runLogin(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	username := args[0]
	ctx := context.Background()

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}

	a.logger.Info("login started", "username", username)

	tok, err := a.provider.SignIn(ctx, username, password)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotConfirmed) {
			return fmt.Errorf("account not confirmed — run 'wanderlore confirm %s <code>' first", username)
		}

		if errors.Is(err, identity.ErrNotAuthorized) {
			return errors.New("incorrect username or password")
		}

		return fmt.Errorf("signing in: %w", err)
	}

	if err := a.sessions.Establish(tok); err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}

	a.logger.Info("login successful", "username", username)
	statusf("Signed in as %s.\n", username)

	return nil
}

func runSignup(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	username := args[0]
	ctx := context.Background()

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}

	confirmed, err := readPassword("Confirm password: ")
	if err != nil {
		return err
	}

	if password != confirmed {
		return errors.New("passwords do not match")
	}

	if err := a.provider.SignUp(ctx, username, password, nil); err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			return fmt.Errorf("an account named %q already exists", username)
		}

		return fmt.Errorf("creating account: %w", err)
	}

	statusf("Account created. Check your email for a verification code, then run 'wanderlore confirm %s <code>'.\n", username)

	return nil
}

func runConfirm(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	username := args[0]
	ctx := context.Background()

	resend, _ := cmd.Flags().GetBool("resend")
	if resend {
		if err := a.provider.ResendConfirmationCode(ctx, username); err != nil {
			return fmt.Errorf("resending code: %w", err)
		}

		statusf("Verification code resent.\n")

		return nil
	}

	if len(args) < 2 {
		return errors.New("verification code required (or pass --resend)")
	}

	if err := a.provider.ConfirmSignUp(ctx, username, args[1]); err != nil {
		switch {
		case errors.Is(err, identity.ErrCodeMismatch):
			return errors.New("verification code does not match")
		case errors.Is(err, identity.ErrCodeExpired):
			return fmt.Errorf("verification code expired — run 'wanderlore confirm %s --resend'", username)
		}

		return fmt.Errorf("confirming account: %w", err)
	}

	statusf("Account confirmed. Run 'wanderlore login %s' to sign in.\n", username)

	return nil
}

func runForgot(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	username := args[0]
	ctx := context.Background()

	code, _ := cmd.Flags().GetString("code")
	if code == "" {
		if err := a.provider.ForgotPassword(ctx, username); err != nil {
			return fmt.Errorf("requesting reset: %w", err)
		}

		statusf("Reset code sent. Complete with 'wanderlore forgot %s --code <code>'.\n", username)

		return nil
	}

	password, err := readPassword("New password: ")
	if err != nil {
		return err
	}

	if err := a.provider.ConfirmNewPassword(ctx, username, code, password); err != nil {
		if errors.Is(err, identity.ErrCodeMismatch) {
			return errors.New("reset code does not match")
		}

		return fmt.Errorf("resetting password: %w", err)
	}

	statusf("Password updated. Run 'wanderlore login %s' to sign in.\n", username)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Info("logout started")

	if err := a.sessions.SignOut(context.Background()); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}

	statusf("Signed out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	SessionState  string `json:"session_state"`
}

func runWhoami(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	out := whoamiOutput{
		Authenticated: a.sessions.IsAuthenticated(),
		Username:      a.sessions.Username(),
		SessionState:  a.sessions.State().String(),
	}

	if flagJSON {
		return printJSON(out)
	}

	if !out.Authenticated {
		fmt.Println("Not signed in.")

		return nil
	}

	fmt.Printf("User:    %s\n", out.Username)
	fmt.Printf("Session: %s\n", out.SessionState)

	return nil
}

func runDeleteAccount(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if !a.sessions.IsAuthenticated() {
		return errors.New("not signed in — run 'wanderlore login' first")
	}

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		answer, err := readPassword("This permanently deletes your account. Type the word 'delete' to continue: ")
		if err != nil {
			return err
		}

		if answer != "delete" {
			return errors.New("aborted")
		}
	}

	ctx := context.Background()

	// Deletion needs a live access token; a forced refresh establishes one
	// even when the stored ID token is still fresh.
	if _, err := a.sessions.Refresh(ctx, true); err != nil {
		return fmt.Errorf("refreshing session: %w", err)
	}

	if err := a.provider.DeleteAccount(ctx); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}

	if err := a.sessions.SignOut(ctx); err != nil {
		a.logger.Warn("clearing credentials after account deletion", "error", err)
	}

	statusf("Account deleted.\n")

	return nil
}
