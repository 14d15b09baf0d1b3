// Package mailer provides outbound mail delivery for password resets.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"sync"
)

// Message is a plain-text mail message.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends mail. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	addr string // host:port
	from string
}

// NewSMTPMailer creates a mailer that relays through host:port.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
	}
}

// Send delivers the message. The context is not plumbed into net/smtp
// (it has no context support); delivery is bounded by the relay's own
// connection timeouts.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		m.from, msg.To, msg.Subject, msg.Body)
	if err := smtp.SendMail(m.addr, nil, m.from, []string{msg.To}, []byte(body)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// RecordingMailer captures sent messages for tests. When Fail is set,
// Send returns an error without recording.
type RecordingMailer struct {
	mu   sync.Mutex
	Fail error

	sent []Message
}

// NewRecordingMailer creates an empty recording mailer.
func NewRecordingMailer() *RecordingMailer {
	return &RecordingMailer{}
}

// Send records the message, or returns Fail if set.
func (m *RecordingMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *RecordingMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
