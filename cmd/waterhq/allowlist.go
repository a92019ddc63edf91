package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dukerupert/waterhq/internal/allowlist"
	"github.com/dukerupert/waterhq/internal/store"
	"github.com/spf13/cobra"
)

var phone bool

var allowlistCmd = &cobra.Command{
	Use:   "allowlist",
	Short: "Manage who may sign in",
}

func kind() allowlist.Kind {
	if phone {
		return allowlist.KindPhone
	}
	return allowlist.KindEmail
}

var allowlistAddCmd = &cobra.Command{
	Use:   "add <identifier>...",
	Short: "Allow one or more emails (or phone numbers with --phone)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		st := store.NewAllowlistStore(db)
		k := kind()
		for _, arg := range args {
			id := allowlist.Normalize(k, arg)
			if id == "" {
				continue
			}
			added, err := st.Add(cmd.Context(), k.Path(), id)
			if err != nil {
				return err
			}
			if added {
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already allowed\n", id)
			}
		}
		return nil
	},
}

var allowlistRemoveCmd = &cobra.Command{
	Use:   "remove <identifier>",
	Short: "Revoke an email (or phone number with --phone)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		k := kind()
		return store.NewAllowlistStore(db).Remove(cmd.Context(), k.Path(), allowlist.Normalize(k, args[0]))
	},
}

var allowlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List allowed emails and phone numbers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		st := store.NewAllowlistStore(db)
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "KIND\tIDENTIFIER")
		for _, k := range []allowlist.Kind{allowlist.KindEmail, allowlist.KindPhone} {
			ids, err := st.List(cmd.Context(), k.Path())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintf(w, "%s\t%s\n", k, id)
			}
		}
		return w.Flush()
	},
}

var allowlistImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import an exported list (JSON array or object of strings)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		k := kind()
		ids, err := allowlist.ParseLegacy(k, data)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		st := store.NewAllowlistStore(db)
		added := 0
		for _, id := range ids {
			ok, err := st.Add(cmd.Context(), k.Path(), id)
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d into %s\n", added, len(ids), k.Path())
		return nil
	},
}

func init() {
	allowlistCmd.PersistentFlags().BoolVar(&phone, "phone", false, "operate on phone numbers instead of emails")
	allowlistCmd.AddCommand(allowlistAddCmd, allowlistRemoveCmd, allowlistListCmd, allowlistImportCmd)
}
