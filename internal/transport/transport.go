// Package transport defines the chat transport the engine talks to. The Telegram
// implementation lives in internal/telegram.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SendRequest is one outbound message.
type SendRequest struct {
	Token          string
	ChatID         string
	Text           string
	ReplyTo        int64
	ParseMode      string
	DisablePreview bool
}

// Sender delivers messages and typing indicators.
type Sender interface {
	// SendMessage returns the external message id.
	SendMessage(ctx context.Context, req SendRequest) (int64, error)
	// SendTyping shows the typing indicator for roughly d.
	SendTyping(ctx context.Context, token, chatID string, d time.Duration) error
}

// Transport is a Sender that owns network resources.
type Transport interface {
	Sender
	Close() error
}

// SendError carries the status of a failed send. StatusCode 0 means the request never
// got a response.
type SendError struct {
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("send failed: %v", e.Err)
	}
	return fmt.Sprintf("send failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Status extracts the status code and Retry-After of err, if it is a SendError.
func Status(err error) (int, time.Duration) {
	var se *SendError
	if errors.As(err, &se) {
		return se.StatusCode, se.RetryAfter
	}
	return 0, 0
}
