package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dukerupert/waterhq/internal/backup"
	"github.com/dukerupert/waterhq/internal/server"
	"github.com/dukerupert/waterhq/internal/store"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot, encrypt and upload the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		mgr, err := backup.NewManager(server.BackupConfig(cfg), db, store.NewBackupStore(db), logger)
		if err != nil {
			return err
		}
		rec, err := mgr.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes)\n", rec.S3Key, rec.SizeBytes)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		list, err := store.NewBackupStore(db).List(cmd.Context(), backupListLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "CREATED\tSIZE\tKEY")
		for _, b := range list {
			fmt.Fprintf(w, "%s\t%d\t%s\n", b.CreatedAt.Local().Format(time.DateTime), b.SizeBytes, b.S3Key)
		}
		return w.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <key> <dest.db>",
	Short: "Download and decrypt a backup into a new database file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Restore never touches the live database.
		mgr, err := backup.NewManager(server.BackupConfig(cfg), nil, nil, logger)
		if err != nil {
			return err
		}
		if err := mgr.Restore(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored %s to %s\n", args[0], args[1])
		return nil
	},
}

var backupListLimit int

func init() {
	backupListCmd.Flags().IntVar(&backupListLimit, "limit", 20, "maximum number of backups to show")
	backupCmd.AddCommand(backupListCmd, backupRestoreCmd)
}
