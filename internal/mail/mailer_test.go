package mail_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/mail"
	"github.com/notifyhub/mailqueue/internal/provider"
)

// MockProvider records messages instead of sending them.
type MockProvider struct {
	Sent []provider.Message
	Err  error
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Send(_ context.Context, msg provider.Message) error {
	if p.Err != nil {
		return p.Err
	}
	p.Sent = append(p.Sent, msg)
	return nil
}

func newMailer(p provider.Provider) *mail.Mailer {
	return mail.NewMailer(p, "Acme", "https://app.example.com", zap.NewNop())
}

func TestSendWelcomeEmail(t *testing.T) {
	p := &MockProvider{}
	require.NoError(t, newMailer(p).SendWelcomeEmail(context.Background(), "user@example.com", "Jane"))

	require.Len(t, p.Sent, 1)
	msg := p.Sent[0]
	assert.Equal(t, "user@example.com", msg.To)
	assert.Equal(t, "Welcome to Acme", msg.Subject)
	assert.Contains(t, msg.HTML, "Welcome to Acme, Jane!")
	assert.Contains(t, msg.HTML, "https://app.example.com")
}

func TestSendWelcomeEmail_NoName(t *testing.T) {
	p := &MockProvider{}
	require.NoError(t, newMailer(p).SendWelcomeEmail(context.Background(), "user@example.com", ""))

	require.Len(t, p.Sent, 1)
	assert.Contains(t, p.Sent[0].HTML, "Welcome to Acme!")
}

func TestSendResetPasswordEmail(t *testing.T) {
	p := &MockProvider{}
	m := newMailer(p)
	require.NoError(t, m.SendResetPasswordEmail(context.Background(), "user@example.com", "tok123"))

	assert.Equal(t, "https://app.example.com/reset-password?token=tok123", m.ResetLink("tok123"))
	require.Len(t, p.Sent, 1)
	assert.Equal(t, "Reset your password", p.Sent[0].Subject)
	assert.Contains(t, p.Sent[0].HTML, `href="https://app.example.com/reset-password?token=tok123"`)
}

func TestSendPasswordChangedEmail(t *testing.T) {
	p := &MockProvider{}
	require.NoError(t, newMailer(p).SendPasswordChangedEmail(context.Background(), "user@example.com", ""))

	require.Len(t, p.Sent, 1)
	assert.Equal(t, "Your password was changed", p.Sent[0].Subject)
	assert.Contains(t, p.Sent[0].HTML, "Hi there,")
	assert.Contains(t, p.Sent[0].HTML, "user@example.com")
}

func TestSend_ProviderError(t *testing.T) {
	cause := errors.New("421 try again later")
	err := newMailer(&MockProvider{Err: cause}).SendWelcomeEmail(context.Background(), "user@example.com", "Jane")
	assert.ErrorIs(t, err, cause)
}

func TestTemplates_EscapeInput(t *testing.T) {
	p := &MockProvider{}
	require.NoError(t, newMailer(p).SendWelcomeEmail(context.Background(), "user@example.com", "<script>x</script>"))
	assert.NotContains(t, p.Sent[0].HTML, "<script>")
}
