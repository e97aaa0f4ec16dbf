package mail

import (
	"context"
	"fmt"
	"html/template"
	"net/url"

	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/provider"
)

// Mailer renders the transactional emails and hands them to a Provider.
type Mailer struct {
	provider provider.Provider
	appName  string
	appURL   string
	logger   *zap.Logger
}

func NewMailer(p provider.Provider, appName, appURL string, logger *zap.Logger) *Mailer {
	return &Mailer{
		provider: p,
		appName:  appName,
		appURL:   appURL,
		logger:   logger.Named("mail").With(zap.String("transport", p.Name())),
	}
}

// ResetLink builds the password reset URL sent to the user.
func (m *Mailer) ResetLink(token string) string {
	return m.appURL + "/reset-password?token=" + url.QueryEscape(token)
}

func (m *Mailer) SendWelcomeEmail(ctx context.Context, email, name string) error {
	return m.send(ctx, "welcome", welcomeTemplate, email,
		fmt.Sprintf("Welcome to %s", m.appName),
		templateParams{Name: name})
}

func (m *Mailer) SendResetPasswordEmail(ctx context.Context, email, token string) error {
	return m.send(ctx, "resetPassword", resetPasswordTemplate, email,
		"Reset your password",
		templateParams{Link: m.ResetLink(token)})
}

func (m *Mailer) SendPasswordChangedEmail(ctx context.Context, email, name string) error {
	return m.send(ctx, "passwordChanged", passwordChangedTemplate, email,
		"Your password was changed",
		templateParams{Name: name})
}

func (m *Mailer) send(ctx context.Context, kind string, t *template.Template, to, subject string, p templateParams) error {
	p.AppName = m.appName
	p.AppURL = m.appURL
	p.Email = to

	body, err := render(t, p)
	if err != nil {
		return fmt.Errorf("render %s email: %w", kind, err)
	}

	if err := m.provider.Send(ctx, provider.Message{To: to, Subject: subject, HTML: body}); err != nil {
		m.logger.Warn("email send failed", zap.String("kind", kind), zap.String("to", to), zap.Error(err))
		return err
	}
	m.logger.Info("email sent", zap.String("kind", kind), zap.String("to", to))
	return nil
}
