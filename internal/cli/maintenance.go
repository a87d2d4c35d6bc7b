package cli

import (
	"fmt"
	"log"
	"time"

	"exam-arena-service/internal/config"
	"exam-arena-service/internal/domain"
	"exam-arena-service/internal/security"
	"github.com/spf13/cobra"
)

// NewSweepCmd completes expired rooms once and exits, for use from cron.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Complete rooms whose 24h window has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			a, err := buildApplication(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			log.Printf("swept %d rooms", n)
			return nil
		},
	}
}

// NewReconcileXPCmd repairs total_xp counters from the ledger.
func NewReconcileXPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-xp [student-id...]",
		Short: "Recompute students' XP totals from the XP log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			a, err := buildApplication(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			for _, id := range args {
				stored, ledger, err := a.services.Ledger.Reconcile(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("reconcile %s: %w", id, err)
				}
				if stored != ledger {
					log.Printf("student %s: repaired total_xp %d -> %d", id, stored, ledger)
				} else {
					log.Printf("student %s: total_xp %d matches the ledger", id, stored)
				}
			}
			return nil
		},
	}
}

// NewTokenCmd signs a bearer token for local development.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		p   domain.Principal
		ttl time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.UserID == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			token, err := security.GenerateToken(security.NewTokenAuth(jwtSecret(cfg)), p, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.UserID, "user", "", "user id claim")
	cmd.Flags().StringVar(&p.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&p.Name, "name", "", "display name claim")
	cmd.Flags().BoolVar(&p.PhoneVerified, "phone-verified", false, "phone_verified claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
