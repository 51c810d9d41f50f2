package service

import (
	"context"

	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// Mailer delivers the links minted by AuthService. link already carries the
// raw token; token is passed separately for templates that show it.
type Mailer interface {
	SendConfirmMail(ctx context.Context, to, loginName, token, link string) error
	SendLostPasswordMail(ctx context.Context, to, loginName, token, link string) error
}

// LogMailer writes mails to the log instead of sending them. Links are only
// visible at debug level.
type LogMailer struct{}

var _ Mailer = LogMailer{}

func (LogMailer) SendConfirmMail(ctx context.Context, to, loginName, _, link string) error {
	l := slogx.FromContext(ctx)
	l.Info("mail: confirm address", "to", to, "login_name", loginName)
	l.Debug("mail: confirm address link", "link", link)
	return nil
}

func (LogMailer) SendLostPasswordMail(ctx context.Context, to, loginName, _, link string) error {
	l := slogx.FromContext(ctx)
	l.Info("mail: lost password", "to", to, "login_name", loginName)
	l.Debug("mail: lost password link", "link", link)
	return nil
}
