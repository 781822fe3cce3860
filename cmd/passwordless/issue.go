// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/internal/config"
	"github.com/holomush/passwordless/internal/delivery"
)

// issueFlags holds flags for the issue command.
type issueFlags struct {
	purpose string
	channel string
	send    bool
}

func newIssueCmd(g *globalFlags, deps *Deps) *cobra.Command {
	f := &issueFlags{}
	cmd := &cobra.Command{
		Use:   "issue EMAIL",
		Short: "Issue a code for an address",
		Long: `Issue a one-time code or magic link for EMAIL, superseding any earlier
one. The secret is printed unless --send delivers it through the configured
channel instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssue(cmd, g, deps, f, args[0])
		},
	}
	cmd.Flags().StringVar(&f.purpose, "purpose", string(auth.PurposeLogin), "purpose tag the code is bound to")
	cmd.Flags().StringVar(&f.channel, "channel", string(auth.ChannelOTP), "otp or magic_link")
	cmd.Flags().BoolVar(&f.send, "send", false, "deliver the secret instead of printing it")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runIssue(cmd *cobra.Command, g *globalFlags, deps *Deps, f *issueFlags, email string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, secrets, err := loadConfig(cmd, g, deps)
	if err != nil {
		return err
	}
	logger, err := setupLogger(cfg, deps)
	if err != nil {
		return err
	}

	backends, err := deps.OpenBackends(ctx, cfg, secrets)
	if err != nil {
		return err
	}
	defer backends.Close()

	svc, err := buildServices(cfg, secrets, backends, nil, logger)
	if err != nil {
		return err
	}
	issued, err := svc.issuer.Issue(ctx, email, auth.Purpose(f.purpose), auth.Channel(f.channel))
	if err != nil {
		return err
	}
	msg, err := delivery.NewMessage(issued, cfg.PublicURL)
	if err != nil {
		return err
	}

	if f.send {
		sender, closeSender, err := deps.OpenSender(ctx, cfg, secrets, logger)
		if err != nil {
			return err
		}
		defer closeSender()
		if err := sender.Send(ctx, msg); err != nil {
			return oops.Code("ISSUE_DELIVERY_FAILED").With("delivery", cfg.Delivery).Wrap(err)
		}
		cmd.Printf("Sent %s to %s via %s\n", issued.Channel, issued.Email, cfg.Delivery)
		return nil
	}

	if msg.Link != "" {
		cmd.Println(msg.Link)
	} else {
		cmd.Println(msg.Secret)
	}
	cmd.Printf("Expires: %s\n", issued.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"))
	return nil
}
