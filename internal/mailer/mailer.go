// Package mailer sends transactional email to buyers.
package mailer

import (
	"context"
	"errors"
)

type Service interface {
	Send(ctx context.Context, e Email) error
}

var ErrInvalidEmail = errors.New("mailer: invalid email")

type Email struct {
	FromName string
	From     string

	To  []string
	Cc  []string
	Bcc []string

	Subject string

	TextBody string
	HTMLBody string

	Headers map[string]string
}

func (e Email) Validate() error {
	switch {
	case len(e.To) == 0:
		return errors.Join(ErrInvalidEmail, errors.New("at least one recipient required"))
	case e.From == "":
		return errors.Join(ErrInvalidEmail, errors.New("from address required"))
	case e.Subject == "":
		return errors.Join(ErrInvalidEmail, errors.New("subject required"))
	case e.TextBody == "" && e.HTMLBody == "":
		return errors.Join(ErrInvalidEmail, errors.New("text or html body required"))
	}
	return nil
}

func (e Email) AllRecipients() []string {
	out := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To...)
	out = append(out, e.Cc...)
	out = append(out, e.Bcc...)
	return out
}

// Nop drops every message; used when SMTP is not configured.
type Nop struct{}

func (Nop) Send(context.Context, Email) error { return nil }
