// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashicorp/go-foundry/components"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the resources the configured deployment would provision",
		Long: `Declare every configured unit into a deployment and print the resulting
resource plan as JSON.

Functions are assembled and archived as part of planning, so the printed
plan carries the archive locations and source hashes an engine needs to
provision the deployment.`,
		RunE: runPlan,
	}
}

func runPlan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := GetConfig(ctx)
	if err := cfg.Validate(); err != nil {
		return err
	}

	d, err := components.NewDeployment(cfg.Platform(GetLogger(ctx)))
	if err != nil {
		return err
	}
	if err := cfg.Declare(ctx, d); err != nil {
		return err
	}
	plan, err := d.Plan(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
