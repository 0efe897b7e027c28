// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// SchemaStatus describes the database schema state.
type SchemaStatus struct {
	Version uint   `json:"version"`
	Dirty   bool   `json:"dirty"`
	Pending []uint `json:"pending"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	return newStatusCmdWithDeps(nil)
}

func newStatusCmdWithDeps(deps *MigrateDeps) *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database schema status",
		Long:  `Show the applied migration version, whether it is dirty, and which migrations are pending.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg, deps)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig, deps *MigrateDeps) error {
	return withMigrator(cmd, deps, func(m Migrator) error {
		var st SchemaStatus
		var err error

		st.Version, st.Dirty, err = m.Version()
		if err != nil {
			return oops.Code("STATUS_FAILED").With("operation", "read version").Wrap(err)
		}
		st.Pending, err = m.PendingMigrations()
		if err != nil {
			return oops.Code("STATUS_FAILED").With("operation", "list pending").Wrap(err)
		}
		if st.Pending == nil {
			st.Pending = []uint{}
		}

		if cfg.jsonOutput {
			out, err := formatStatusJSON(st)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		}
		cmd.Print(formatStatusTable(st))
		return nil
	})
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(st SchemaStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "VERSION\tSTATE\tPENDING")

	state := "clean"
	if st.Dirty {
		state = "dirty"
	}
	pending := "none"
	if len(st.Pending) > 0 {
		parts := make([]string, len(st.Pending))
		for i, v := range st.Pending {
			parts[i] = fmt.Sprint(v)
		}
		pending = strings.Join(parts, ",")
	}
	_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", st.Version, state, pending)

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(st SchemaStatus) (string, error) {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", oops.Code("STATUS_FAILED").With("operation", "marshal status").Wrap(err)
	}
	return string(data), nil
}
