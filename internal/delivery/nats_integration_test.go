// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package delivery_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/internal/delivery"
)

func TestNATSSender_Integration(t *testing.T) {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.Endpoint(ctx, "nats")
	require.NoError(t, err)

	conn, err := delivery.ConnectNATS(ctx, url, 3, 100*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	received := make(chan *nats.Msg, 1)
	sub, err := conn.ChanSubscribe(delivery.DefaultNATSSubject, received)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	sender := delivery.NewNATSSender(conn, delivery.DefaultNATSSubject)
	require.NoError(t, sender.Send(ctx, delivery.Message{
		To: "a@example.com", Purpose: auth.PurposeLogin, Channel: auth.ChannelOTP, Secret: "123456",
	}))

	select {
	case msg := <-received:
		var n delivery.Notification
		require.NoError(t, json.Unmarshal(msg.Data, &n))
		assert.Equal(t, "123456", n.Code)
		assert.Equal(t, "auth_otp", n.Template)
	case <-time.After(5 * time.Second):
		t.Fatal("notification not received")
	}
}
