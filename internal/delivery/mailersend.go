// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package delivery

import (
	"context"
	"net/http"

	"github.com/mailersend/mailersend-go"
	"github.com/samber/oops"
)

// emailAPI is the part of the MailerSend client the sender calls.
type emailAPI interface {
	Send(ctx context.Context, message *mailersend.Message) (*mailersend.Response, error)
}

// MailerSendSender delivers messages as email through MailerSend.
type MailerSendSender struct {
	api  emailAPI
	from mailersend.From
}

// NewMailerSendSender creates a sender authenticated with apiKey.
func NewMailerSendSender(apiKey, fromName, fromEmail string) (*MailerSendSender, error) {
	if apiKey == "" {
		return nil, oops.Code("DELIVERY_INVALID_CONFIG").Errorf("MAILERSEND_API_KEY is required for mailersend delivery")
	}
	if fromEmail == "" {
		return nil, oops.Code("DELIVERY_INVALID_CONFIG").Errorf("sender address is required for mailersend delivery")
	}
	return newMailerSendSender(mailersend.NewMailersend(apiKey).Email, fromName, fromEmail), nil
}

func newMailerSendSender(api emailAPI, fromName, fromEmail string) *MailerSendSender {
	return &MailerSendSender{
		api:  api,
		from: mailersend.From{Name: fromName, Email: fromEmail},
	}
}

// Send emails msg. Client errors other than rate limiting are permanent.
func (s *MailerSendSender) Send(ctx context.Context, msg Message) error {
	m := &mailersend.Message{}
	m.SetFrom(s.from)
	m.SetRecipients([]mailersend.Recipient{{Email: msg.To}})
	m.SetSubject(msg.Subject())
	m.SetText(msg.Text())
	m.SetHTML(msg.HTML())

	res, err := s.api.Send(ctx, m)
	status := 0
	if res != nil && res.Response != nil {
		status = res.StatusCode
		if res.Body != nil {
			_ = res.Body.Close() //nolint:errcheck // body is not read
		}
	}
	if err == nil && status >= 200 && status < 300 {
		return nil
	}

	builder := oops.Code("DELIVERY_MAILERSEND_FAILED").With("status", status)
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		if err == nil {
			return builder.Wrap(ErrPermanent)
		}
		return builder.Wrapf(ErrPermanent, "%v", err)
	}
	if err == nil {
		return builder.Errorf("unexpected mailersend status %d", status)
	}
	return builder.Wrap(err)
}
