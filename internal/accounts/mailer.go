// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package accounts

import (
	"context"
	"log/slog"
)

// Message is an outgoing email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers account emails (password reset, email verification).
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes every message to the log instead of sending it. It is
// the development mailer: reset and verification links show up in the
// server output.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs msg.
func (m LogMailer) Send(ctx context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
