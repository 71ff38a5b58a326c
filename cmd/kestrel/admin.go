package main

import (
	"context"
	"fmt"
	"time"

	"github.com/edumetrics/kestrel/internal/api"
	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/repository"
	"github.com/edumetrics/kestrel/internal/rules"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed-advisories",
	Short: "Store the built-in advisories in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		repo, err := repository.New(cfg.Repository)
		if err != nil {
			return fmt.Errorf("initialize repository: %w", err)
		}
		defer repo.Close()

		engine, err := rules.NewEngine(0)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx := context.Background()
		for _, rule := range rules.DefaultAdvisories() {
			if err := engine.ValidateRule(rule); err != nil {
				return fmt.Errorf("advisory %s: %w", rule.ID, err)
			}
			if err := repo.SaveAdvisoryRule(ctx, domain.GlobalTenantID, rule); err != nil {
				return fmt.Errorf("save advisory %s: %w", rule.ID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%s)\n", rule.ID, rule.Version)
		}
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue a bearer token for the API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		role, _ := cmd.Flags().GetString("role")
		tenant, _ := cmd.Flags().GetString("tenant")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if role != api.RoleAdmin && role != api.RoleReader {
			return fmt.Errorf("unknown role %q", role)
		}

		token, err := api.IssueToken(cfg.Auth, args[0], role, tenant, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("role", api.RoleAdmin, "Role claim: admin or reader")
	tokenCmd.Flags().String("tenant", "", "Pin the token to one tenant")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}
