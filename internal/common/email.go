package common

import (
	"context"
	"sync"
)

// EmailSender delivers a rendered HTML message.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Email is one message captured by InMemoryEmail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail records messages instead of sending them. Safe for
// concurrent use.
type InMemoryEmail struct {
	mu     sync.Mutex
	outbox []Email
}

func (m *InMemoryEmail) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// Outbox returns a copy of the captured messages.
func (m *InMemoryEmail) Outbox() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.outbox...)
}
