// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command. A nil deps uses the real backends.
func NewRootCmd(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = &Deps{}
	}
	deps.setDefaults()
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "passwordless",
		Short: "Passwordless authentication service",
		Long: `passwordless issues one-time codes and magic links, verifies them
atomically and hands out cookie sessions.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(g.envFile, deps.Setenv)
		},
	}

	cmd.PersistentFlags().StringVar(&g.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/passwordless/config.yaml)")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", "", "dotenv file with secrets (default: .env if present)")

	cmd.AddCommand(newServeCmd(g, deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(newSweepCmd(g, deps))
	cmd.AddCommand(newIssueCmd(g, deps))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newStatusCmd(g, deps))

	return cmd
}

// loadEnvFile reads secrets from a dotenv file without overriding variables
// already set. The implicit .env may be absent; an explicit file must exist.
func loadEnvFile(path string, setenv func(key, value string) error) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("ENV_FILE_UNREADABLE").With("path", path).Wrap(err)
	}
	for key, value := range values {
		if err := setenv(key, value); err != nil {
			return oops.Code("ENV_FILE_UNREADABLE").With("key", key).Wrap(err)
		}
	}
	return nil
}
