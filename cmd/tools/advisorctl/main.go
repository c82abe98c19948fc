package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/silvercoin/advisor/backend/internal/config"
	"github.com/silvercoin/advisor/backend/internal/logging"
	"github.com/silvercoin/advisor/backend/internal/model/profile"
	"github.com/silvercoin/advisor/backend/internal/service/auth"
	profileService "github.com/silvercoin/advisor/backend/internal/service/profile"
	"github.com/silvercoin/advisor/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "advisorctl",
		Short:         "Operator tooling for the advisor backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTokenCmd(), newSeedCmd())
	return root
}

func newTokenCmd() *cobra.Command {
	var (
		username string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer credential signed with the configured secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if username == "" {
				username = cfg.Auth.DemoUsername
			}
			issuer, err := auth.NewIssuer(auth.KeyConfig{
				Secret:    cfg.Auth.SecretKey,
				Algorithm: cfg.Auth.Algorithm,
				TTL:       cfg.Auth.TokenTTL(),
			})
			if err != nil {
				return err
			}
			token, expires, err := issuer.Issue(username, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account name to embed (defaults to the demo account)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "credential lifetime (defaults to ACCESS_TOKEN_EXPIRE_MINUTES)")
	return cmd
}

func newSeedCmd() *cobra.Command {
	var (
		driver  string
		dsn     string
		entries int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a sample client profile with synthetic spending",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("driver") {
				cfg.Store.Driver = driver
			}
			if cmd.Flags().Changed("dsn") {
				cfg.Store.DSN = dsn
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			profiles, closeStore, err := store.Open(cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			svc := profileService.NewService(profiles, logger)
			created, err := svc.Create(cmd.Context(), sampleProfile())
			if err != nil {
				return err
			}
			if _, err := svc.GenerateSpending(cmd.Context(), created.ID, entries); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "", "profile store driver (memory or sqlite)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "sqlite database path")
	cmd.Flags().IntVar(&entries, "entries", profileService.DefaultSpendingEntries, "number of spending entries to generate")
	return cmd
}

func sampleProfile() profile.Profile {
	age, investments := 72, "none"
	income, savings, debts := 2000.0, 5000.0, 0.0
	return profile.Profile{
		Name:           "Alice",
		Age:            &age,
		Income:         &income,
		Savings:        &savings,
		Debts:          &debts,
		Investments:    &investments,
		FinancialGoals: []string{"retire comfortably"},
	}
}
