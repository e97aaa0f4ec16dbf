package provider

import (
	"context"
)

// Message is one rendered email ready for a transport.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Provider abstracts the transport that actually delivers an email.
// Mocking this interface in tests gives full control over delivery
// behaviour without talking to a real SMTP server or webhook.
type Provider interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}
