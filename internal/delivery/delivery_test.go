// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package delivery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/mailersend/mailersend-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/pkg/errutil"
)

func TestMagicLink(t *testing.T) {
	link, err := MagicLink("https://auth.example.com/", "a+b@example.com", auth.PurposeLogin, "deadbeef")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/auth/magic", u.Path)
	assert.Equal(t, "a+b@example.com", u.Query().Get("email"))
	assert.Equal(t, "login", u.Query().Get("purpose"))
	assert.Equal(t, "deadbeef", u.Query().Get("token"))

	_, err = MagicLink("not a url", "a@example.com", auth.PurposeLogin, "t")
	errutil.AssertErrorCode(t, err, "DELIVERY_INVALID_PUBLIC_URL")
}

func TestNewMessage(t *testing.T) {
	expires := time.Now().Add(10 * time.Minute)

	otp, err := NewMessage(&auth.IssuedCode{Secret: "012345", Email: "a@example.com", Purpose: auth.PurposeLogin, Channel: auth.ChannelOTP, ExpiresAt: expires}, "")
	require.NoError(t, err)
	assert.Empty(t, otp.Link)
	assert.Contains(t, otp.Text(), "012345")
	assert.Contains(t, otp.HTML(), "012345")
	assert.Equal(t, "Your sign-in code", otp.Subject())

	link, err := NewMessage(&auth.IssuedCode{Secret: "abcd", Email: "a@example.com", Purpose: auth.PurposeLogin, Channel: auth.ChannelMagicLink, ExpiresAt: expires}, "http://localhost:8080")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.Link, "http://localhost:8080/auth/magic?"))
	assert.Contains(t, link.Text(), link.Link)
	assert.Equal(t, "Your sign-in link", link.Subject())
}

func TestLogSender(t *testing.T) {
	msg := Message{To: "a@example.com", Purpose: auth.PurposeLogin, Channel: auth.ChannelOTP, Secret: "424242"}

	t.Run("hides the secret by default", func(t *testing.T) {
		logger, buf := captureLogger()
		require.NoError(t, NewLogSender(logger, false).Send(context.Background(), msg))
		assert.Contains(t, buf.String(), "a@example.com")
		assert.NotContains(t, buf.String(), "424242")
	})

	t.Run("reveals the secret in development", func(t *testing.T) {
		logger, buf := captureLogger()
		require.NoError(t, NewLogSender(logger, true).Send(context.Background(), msg))
		assert.Contains(t, buf.String(), "424242")
	})
}

type fakeEmailAPI struct {
	status int
	err    error
	sent   []*mailersend.Message
}

func (f *fakeEmailAPI) Send(_ context.Context, m *mailersend.Message) (*mailersend.Response, error) {
	f.sent = append(f.sent, m)
	return &mailersend.Response{Response: &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader("")),
	}}, f.err
}

func TestMailerSendSender(t *testing.T) {
	msg := Message{To: "a@example.com", Purpose: auth.PurposeLogin, Channel: auth.ChannelOTP, Secret: "111111"}

	tests := []struct {
		name          string
		status        int
		err           error
		wantErr       bool
		wantPermanent bool
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "bad request is permanent", status: http.StatusUnprocessableEntity, err: errors.New("invalid recipient"), wantErr: true, wantPermanent: true},
		{name: "rate limited is retryable", status: http.StatusTooManyRequests, err: errors.New("slow down"), wantErr: true},
		{name: "server error is retryable", status: http.StatusBadGateway, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeEmailAPI{status: tt.status, err: tt.err}
			err := newMailerSendSender(api, "Auth", "no-reply@example.com").Send(context.Background(), msg)
			require.Len(t, api.sent, 1)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, "DELIVERY_MAILERSEND_FAILED")
			assert.Equal(t, tt.wantPermanent, errors.Is(err, ErrPermanent))
		})
	}
}

func TestNewMailerSendSender_RequiresConfig(t *testing.T) {
	_, err := NewMailerSendSender("", "Auth", "no-reply@example.com")
	errutil.AssertErrorCode(t, err, "DELIVERY_INVALID_CONFIG")
	_, err = NewMailerSendSender("key", "Auth", "")
	errutil.AssertErrorCode(t, err, "DELIVERY_INVALID_CONFIG")
}

func TestRetrying(t *testing.T) {
	msg := Message{To: "a@example.com", Channel: auth.ChannelOTP}
	logger, _ := captureLogger()

	t.Run("retries transient failures", func(t *testing.T) {
		calls := 0
		next := SenderFunc(func(context.Context, Message) error {
			calls++
			if calls < 3 {
				return errors.New("timeout")
			}
			return nil
		})
		require.NoError(t, NewRetrying(next, 3, time.Millisecond, logger).Send(context.Background(), msg))
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after the budget", func(t *testing.T) {
		calls := 0
		next := SenderFunc(func(context.Context, Message) error {
			calls++
			return errors.New("timeout")
		})
		err := NewRetrying(next, 2, time.Millisecond, logger).Send(context.Background(), msg)
		errutil.AssertErrorCode(t, err, "DELIVERY_FAILED")
		errutil.AssertErrorContext(t, err, "attempts", 2)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on permanent failures", func(t *testing.T) {
		calls := 0
		next := SenderFunc(func(context.Context, Message) error {
			calls++
			return ErrPermanent
		})
		err := NewRetrying(next, 5, time.Millisecond, logger).Send(context.Background(), msg)
		require.ErrorIs(t, err, ErrPermanent)
		assert.Equal(t, 1, calls)
	})
}
