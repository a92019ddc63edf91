package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/waterhq/internal/identity"
	"github.com/dukerupert/waterhq/internal/push"
	"github.com/dukerupert/waterhq/internal/store"
	"github.com/spf13/cobra"
)

var vapidCmd = &cobra.Command{
	Use:   "vapid",
	Short: "Generate a VAPID key pair for web push",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "WATERHQ_VAPID_PUBLIC_KEY=%s\nWATERHQ_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <email>",
	Short: "Issue a bearer token for an email address",
	Long:  "Issue a bearer token without the sign-in flow. The address must still be allowlisted to use it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		addr := strings.ToLower(strings.TrimSpace(args[0]))
		tok, err := identity.NewIssuer(cfg.TokenSecret, cfg.TokenTTL).Issue(identity.Identity{
			Email:         addr,
			EmailVerified: true,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var graceCmd = &cobra.Command{
	Use:   "grace <duration>",
	Short: "Open an enrolment window; anyone who signs in before it ends is allowlisted",
	Long:  "Open an enrolment window for the given duration (e.g. 30m). A duration of 0 closes it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return err
		}
		if d < 0 {
			return fmt.Errorf("duration must not be negative")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		until := time.Now().Add(d)
		if err := store.NewSettingsStore(db).SetGraceUntil(cmd.Context(), until); err != nil {
			return err
		}
		if d == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "grace period closed")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "grace period open until %s\n", until.Format(time.RFC3339))
		return nil
	},
}
