package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/heizoel/internal/notify"
	"github.com/MarcoPoloResearchLab/heizoel/internal/users"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func newFetchMailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-mail",
		Short: "Copy the newest INBOX messages into the local cache once",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close() //nolint:errcheck

			result, err := app.mailbox.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d, skipped %d\n", result.Inserted, result.Skipped)
			return nil
		},
	}
}

func newAdminCommand() *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}

	var email string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account, prompting for the password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			password, err := promptPassword(cmd)
			if err != nil {
				return err
			}

			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close() //nolint:errcheck

			account, err := app.accounts.Create(cmd.Context(), email, password)
			if err != nil {
				if errors.Is(err, users.ErrDuplicateEmail) {
					return fmt.Errorf("an account for %s already exists", email)
				}
				return err
			}
			app.logger.Info("admin account created", zap.String("account_id", account.ID), zap.String("email", account.Email))
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", account.Email, account.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "Login email of the new account")
	adminCmd.AddCommand(createCmd)
	return adminCmd
}

// promptPassword reads the password twice without echo.
func promptPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("admin create needs an interactive terminal for the password prompt")
	}
	out := cmd.ErrOrStderr()

	fmt.Fprintf(out, "Password (at least %d characters): ", users.MinPasswordLength)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(password) < users.MinPasswordLength {
		return "", users.ErrPasswordTooShort
	}

	fmt.Fprint(out, "Repeat password: ")
	confirm, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(password) != string(confirm) {
		return "", errors.New("passwords do not match")
	}
	return string(password), nil
}

func newNotifyCommand() *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Exercise the notification channels",
	}

	var recipient string
	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test mail and a test Telegram message with the stored settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close() //nolint:errcheck

			out := cmd.OutOrStdout()
			var failures []error

			receipt, err := app.email.SendTest(cmd.Context(), recipient)
			if err != nil {
				failures = append(failures, fmt.Errorf("email: %w", err))
				fmt.Fprintf(out, "email: failed: %v\n", err)
			} else {
				fmt.Fprintf(out, "email: sent %s to %s\n", receipt.MessageID, strings.Join(receipt.To, ", "))
			}

			report, err := app.telegram.Dispatch(cmd.Context(), notify.TestEvent())
			if err != nil {
				failures = append(failures, fmt.Errorf("telegram: %w", err))
				fmt.Fprintf(out, "telegram: failed: %v\n", err)
			} else {
				fmt.Fprintf(out, "telegram: %d delivered, %d failed\n", report.Successful, report.Failed)
				for _, result := range report.Results {
					if !result.Success {
						fmt.Fprintf(out, "  %s: %s\n", result.ChatID, result.Error)
					}
				}
			}
			return errors.Join(failures...)
		},
	}
	testCmd.Flags().StringVar(&recipient, "recipient", "", "Test mail recipient (defaults to the stored notify address)")
	notifyCmd.AddCommand(testCmd)
	return notifyCmd
}
