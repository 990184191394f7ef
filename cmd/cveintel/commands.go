package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/charlesng35/cveintel/internal/bootstrap"
	"github.com/charlesng35/cveintel/internal/security"
	"github.com/charlesng35/cveintel/internal/services"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cveintel version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newAssessCmd(state *cliState) *cobra.Command {
	var (
		tenant  string
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "assess CVE-ID",
		Short: "Print the composite risk assessment for a CVE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withServices(cmd.Context(), func(ctx context.Context, svc *bootstrap.Services) error {
				result, err := svc.Intel.GetCompositeAssessment(ctx, args[0], services.AssessmentOptions{
					UseCache: !noCache,
					TenantID: tenantFlag(tenant),
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant scope for the cached result")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass cached results (the fresh result is still stored)")
	return cmd
}

func newSearchCmd(state *cliState) *cobra.Command {
	var (
		tenant  string
		limit   int
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "search KEYWORD...",
		Short: "Search the vulnerability database by keyword",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withServices(cmd.Context(), func(ctx context.Context, svc *bootstrap.Services) error {
				result, err := svc.Intel.SearchByKeyword(ctx, strings.Join(args, " "), services.SearchOptions{
					Limit:    limit,
					UseCache: !noCache,
					TenantID: tenantFlag(tenant),
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant scope for the cached result")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass cached results")
	return cmd
}

func newSweepCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired intelligence records and feed cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withServices(cmd.Context(), func(ctx context.Context, svc *bootstrap.Services) error {
				stats, err := svc.Cleaner.RunOnce(ctx)
				if werr := writeJSON(cmd.OutOrStdout(), stats); werr != nil && err == nil {
					err = werr
				}
				return err
			})
		},
	}
}

func newAuditCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check the deployment configuration and cache hygiene",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.withServices(cmd.Context(), func(ctx context.Context, svc *bootstrap.Services) error {
				result := svc.Audit.Run(ctx)
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if failed := result.Summary[string(security.StatusFail)]; failed > 0 {
					return fmt.Errorf("%d audit check(s) failed", failed)
				}
				return nil
			})
		},
	}
}
