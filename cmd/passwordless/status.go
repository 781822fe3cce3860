// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/passwordless/internal/config"
)

// ProbeStatus is the result of one health probe.
type ProbeStatus struct {
	Probe      string `json:"probe"`
	Healthy    bool   `json:"healthy"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// statusFlags holds flags for the status command.
type statusFlags struct {
	jsonOutput bool
	addr       string
}

var probes = []string{"liveness", "readiness"}

func newStatusCmd(g *globalFlags, deps *Deps) *cobra.Command {
	f := &statusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running service",
		Long: `Query the liveness and readiness endpoints on the metrics address.
Readiness fails while the stores are unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, g, deps, f)
		},
	}
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().StringVar(&f.addr, "addr", "", "metrics address (default: metrics_addr from config)")
	return cmd
}

func runStatus(cmd *cobra.Command, g *globalFlags, deps *Deps, f *statusFlags) error {
	addr := f.addr
	if addr == "" {
		cfg, err := config.Load(nil, g.configFile)
		if err != nil {
			return err
		}
		addr = cfg.MetricsAddr
	}
	if addr == "" {
		return oops.Code("STATUS_NO_ADDR").Errorf("metrics_addr is not configured; pass --addr")
	}
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	statuses := make([]ProbeStatus, 0, len(probes))
	for _, probe := range probes {
		statuses = append(statuses, queryProbe(ctx, deps.HTTPClient, base, probe))
	}

	if f.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
		cmd.Println(string(data))
	} else {
		cmd.Print(formatStatusTable(statuses))
	}

	for _, s := range statuses {
		if !s.Healthy {
			return oops.Code("STATUS_UNHEALTHY").With("probe", s.Probe).Errorf("%s probe failed", s.Probe)
		}
	}
	return nil
}

func queryProbe(ctx context.Context, client *http.Client, base, probe string) ProbeStatus {
	status := ProbeStatus{Probe: probe}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz/"+probe, http.NoBody)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain only

	status.StatusCode = resp.StatusCode
	status.Healthy = resp.StatusCode == http.StatusOK
	return status
}

func formatStatusTable(statuses []ProbeStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PROBE\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t------\t------")
	for _, s := range statuses {
		state := "healthy"
		if !s.Healthy {
			state = "unhealthy"
		}
		detail := "-"
		switch {
		case s.Error != "":
			detail = s.Error
		case s.StatusCode != 0:
			detail = fmt.Sprintf("HTTP %d", s.StatusCode)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Probe, state, detail)
	}

	_ = w.Flush()
	return sb.String()
}
