package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notifyhub/mailqueue/internal/service"
)

func NewSendCmd(svc Sender) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a transactional email",
	}
	cmd.AddCommand(
		newSendWelcomeCmd(svc),
		newSendResetPasswordCmd(svc),
		newSendPasswordChangedCmd(svc),
	)
	return cmd
}

func newSendWelcomeCmd(svc Sender) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "welcome <email>",
		Short: "Send the welcome email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := svc.SendWelcome(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			printReceipt(cmd, r)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "recipient display name")
	return cmd
}

func newSendResetPasswordCmd(svc Sender) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Send the password reset email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := svc.SendResetPassword(cmd.Context(), args[0], token)
			if err != nil {
				return err
			}
			printReceipt(cmd, r)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "password reset token")
	return cmd
}

func newSendPasswordChangedCmd(svc Sender) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "password-changed <email>",
		Short: "Send the password changed notice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := svc.SendPasswordChanged(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			printReceipt(cmd, r)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "recipient display name")
	return cmd
}

func printReceipt(cmd *cobra.Command, r service.Receipt) {
	if r.JobID != "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Job enqueued:", r.JobID)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Email sent directly (broker unavailable)")
}
