package dispatcher

import (
	"context"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// Mailer sends the concrete emails. *mail.Mailer implements it.
type Mailer interface {
	SendWelcomeEmail(ctx context.Context, email, name string) error
	SendResetPasswordEmail(ctx context.Context, email, token string) error
	SendPasswordChangedEmail(ctx context.Context, email, name string) error
}

// Dispatcher routes an email job to the matching Mailer operation.
// It is stateless and safe for concurrent use.
type Dispatcher struct {
	mailer Mailer
}

func New(m Mailer) *Dispatcher {
	return &Dispatcher{mailer: m}
}

// Dispatch validates job and performs exactly one send for it.
//
// Payload problems are returned as *domain.ValidationError and unknown types
// as *domain.UnknownJobTypeError, both without calling the Mailer. Mailer
// failures come back wrapped in *domain.DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, job domain.EmailJob) error {
	typed, err := domain.Decode(job)
	if err != nil {
		return err
	}
	return d.Send(ctx, typed)
}

// Send performs the send for an already validated job.
func (d *Dispatcher) Send(ctx context.Context, job domain.Job) error {
	var err error
	switch j := job.(type) {
	case domain.WelcomeJob:
		err = d.mailer.SendWelcomeEmail(ctx, j.Email, j.Name)
	case domain.ResetPasswordJob:
		err = d.mailer.SendResetPasswordEmail(ctx, j.Email, j.Token)
	case domain.PasswordChangedJob:
		err = d.mailer.SendPasswordChangedEmail(ctx, j.Email, j.Name)
	default:
		return &domain.UnknownJobTypeError{Type: "<nil>"}
	}
	if err != nil {
		return &domain.DispatchError{Type: job.Kind(), Err: err}
	}
	return nil
}
