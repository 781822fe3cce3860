// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/holomush/passwordless/internal/config"
)

func newSweepCmd(g *globalFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired auth codes once",
		Long: `Delete every expired auth code and exit. serve sweeps continuously;
this is for deployments that run the purge from a scheduler instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, g, deps)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runSweep(cmd *cobra.Command, g *globalFlags, deps *Deps) error {
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
	n, err := svc.sweeper.SweepOnce(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Removed %d expired code(s)\n", n)
	return nil
}
