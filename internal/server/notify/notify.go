// Package notify delivers one-time codes and reset links out of band.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
)

// ErrInvalidMessage is returned for messages that can't be delivered safely
var ErrInvalidMessage = errors.New("invalid message")

// Message is a single out-of-band notification
type Message struct {
	To      string
	Subject string
	// Body is HTML
	Body string
}

// Dispatcher delivers messages to recipients
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(ctx context.Context, msg Message) error

// Send calls f(ctx, msg)
func (f DispatcherFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// OTPMessage builds the one-time code notification
func OTPMessage(to, code string) Message {
	return Message{
		To:      to,
		Subject: "Your OTP Code",
		Body:    fmt.Sprintf("<h1>Your OTP: %s</h1>", html.EscapeString(code)),
	}
}

// ResetMessage builds the password reset notification
func ResetMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Password Reset",
		Body:    fmt.Sprintf(`<a href="%s">Reset Password</a>`, html.EscapeString(link)),
	}
}

// Validate checks that header fields can't break out of their lines
func (m Message) Validate() error {
	if m.To == "" {
		return fmt.Errorf("%w: empty recipient", ErrInvalidMessage)
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return fmt.Errorf("%w: header contains line break", ErrInvalidMessage)
	}
	return nil
}
