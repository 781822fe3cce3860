// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package delivery sends issued secrets to users out of band.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/passwordless/internal/auth"
)

// ErrPermanent marks a delivery failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

// Message is one secret bound for one recipient.
type Message struct {
	To        string
	Purpose   auth.Purpose
	Channel   auth.Channel
	Secret    string
	Link      string
	ExpiresAt time.Time
}

// NewMessage builds the message for an issued code. For magic links the
// link is built from publicURL.
func NewMessage(issued *auth.IssuedCode, publicURL string) (Message, error) {
	msg := Message{
		To:        issued.Email,
		Purpose:   issued.Purpose,
		Channel:   issued.Channel,
		Secret:    issued.Secret,
		ExpiresAt: issued.ExpiresAt,
	}
	if issued.Channel == auth.ChannelMagicLink {
		link, err := MagicLink(publicURL, issued.Email, issued.Purpose, issued.Secret)
		if err != nil {
			return Message{}, err
		}
		msg.Link = link
	}
	return msg, nil
}

// MagicLink returns the URL that consumes token for email.
func MagicLink(publicURL, email string, purpose auth.Purpose, token string) (string, error) {
	base, err := url.Parse(strings.TrimRight(publicURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", oops.Code("DELIVERY_INVALID_PUBLIC_URL").With("public_url", publicURL).Errorf("public url must be absolute")
	}
	base.Path += "/auth/magic"
	q := url.Values{}
	q.Set("email", email)
	q.Set("purpose", string(purpose))
	q.Set("token", token)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// Subject returns the email subject line.
func (m Message) Subject() string {
	if m.Channel == auth.ChannelMagicLink {
		return "Your sign-in link"
	}
	return "Your sign-in code"
}

// Text renders the plain-text body.
func (m Message) Text() string {
	minutes := int(time.Until(m.ExpiresAt).Round(time.Minute).Minutes())
	if m.Channel == auth.ChannelMagicLink {
		return fmt.Sprintf("Sign in by opening this link: %s\n\nThe link expires in %d minutes and works once.", m.Link, minutes)
	}
	return fmt.Sprintf("Your sign-in code is %s.\n\nThe code expires in %d minutes. If you did not ask for it, ignore this email.", m.Secret, minutes)
}

// HTML renders the HTML body.
func (m Message) HTML() string {
	if m.Channel == auth.ChannelMagicLink {
		return fmt.Sprintf(`<p>Sign in by opening <a href="%s">this link</a>.</p><p>It works once.</p>`, m.Link)
	}
	return fmt.Sprintf(`<p>Your sign-in code is <strong>%s</strong></p>`, m.Secret)
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
