package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/service"
)

// Sender is the part of *service.EmailService the CLI uses.
type Sender interface {
	SendWelcome(ctx context.Context, email, name string) (service.Receipt, error)
	SendResetPassword(ctx context.Context, email, token string) (service.Receipt, error)
	SendPasswordChanged(ctx context.Context, email, name string) (service.Receipt, error)
}

// Queue is the part of *queue.Queue the CLI uses.
type Queue interface {
	Name() string
	Get(ctx context.Context, id string) (*domain.JobRecord, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
	PromoteDue(ctx context.Context) (int, error)
}

func NewRootCmd(svc Sender, q Queue) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mailctl",
		Short:         "Send transactional emails and inspect the email queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		NewSendCmd(svc),
		NewJobCmd(q),
		NewQueueCmd(q),
	)
	return cmd
}
