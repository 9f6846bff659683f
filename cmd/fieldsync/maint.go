package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldagentpro/fieldsync/internal/config"
	"github.com/fieldagentpro/fieldsync/internal/loadtest"
	"github.com/fieldagentpro/fieldsync/internal/migrate"
	"github.com/fieldagentpro/fieldsync/internal/store"
	"github.com/fieldagentpro/fieldsync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "maint",
	Short:   "Manage fieldsync configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the current settings",
	Long: `Write the effective settings (defaults, environment and flags) to a TOML
config file. The default path is fieldsync.toml in ` + config.DefaultDir() + `.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := filepath.Join(config.DefaultDir(), "fieldsync.toml")
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteTOML(path, cfg, force); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Println(ui.RenderMuted("# " + used))
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "maint",
	Short:   "Upgrade a database from the soft-delete schema",
	Long: `Upgrade an older shipment cache to the current schema.

Older caches marked deleted shipments with an is_deleted column. Migration
queues each of them as a pending delete, removes the rows and drops the column.
Duplicate outbox entries are collapsed. Running it on a current database is a
no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")

		if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
			return fmt.Errorf("no database at %s", cfg.DBPath)
		}
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := migrate.Migrate(cmd.Context(), db, migrate.MigrateOptions{DryRun: dryRun, Backup: backup})
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(res)
		}
		if res.AlreadyCurrent {
			fmt.Printf("%s Database is up to date\n", ui.RenderPass("✓"))
			return nil
		}
		verb := "Migrated"
		if dryRun {
			verb = "Would migrate"
		}
		fmt.Printf("%s %s %s\n", ui.RenderAccent("→"), verb, cfg.DBPath)
		fmt.Printf("   Soft-deleted rows queued as deletes: %d\n", res.SoftDeleted)
		fmt.Printf("   Duplicate outbox entries removed: %d\n", res.OutboxDeduped)
		if res.BackupCreated != "" {
			fmt.Printf("   Backup: %s\n", res.BackupCreated)
		}
		return nil
	},
}

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "maint",
	Short:   "Measure snapshot replace under concurrent readers",
	Long: `Create a scratch database, then replace its shipments repeatedly while
concurrent readers list them. Reports read and replace latency and whether any
reader saw an empty or partial table.

The scratch database is created in a temporary directory and removed
afterwards; the configured cache is not touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		readers, _ := cmd.Flags().GetInt("readers")
		shipments, _ := cmd.Flags().GetInt("shipments")
		replaces, _ := cmd.Flags().GetInt("replaces")
		if readers <= 0 || shipments <= 0 || replaces <= 0 {
			return fmt.Errorf("--readers, --shipments and --replaces must be positive")
		}

		dir, err := os.MkdirTemp("", "fieldsync-loadtest-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		td, err := loadtest.CreateTestDatabase(filepath.Join(dir, "loadtest.db"), shipments)
		if err != nil {
			return err
		}
		defer td.Close()

		fmt.Printf("%s %d readers, %d replaces of ~%d shipments...\n", ui.RenderAccent("⏱"), readers, replaces, shipments)
		start := time.Now()
		report, err := td.RunReplaceUnderLoad(cmd.Context(), readers, replaces)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		if jsonOutput {
			return printJSON(map[string]any{
				"reads":       report.Reads.TotalQueries,
				"read_p95":    report.Reads.P95.String(),
				"replace_p95": report.Replaces.P95.String(),
				"empty_reads": report.EmptyReads,
				"torn_reads":  report.TornReads,
				"consistent":  report.Consistent(),
				"elapsed":     elapsed.String(),
			})
		}

		fmt.Printf("\nReads:\n")
		report.Reads.PrintStats(os.Stdout)
		fmt.Printf("\nReplaces:\n")
		report.Replaces.PrintStats(os.Stdout)
		fmt.Printf("\nTotal: %v\n", elapsed.Round(time.Millisecond))
		if report.Consistent() {
			fmt.Printf("%s Every read saw a complete snapshot\n", ui.RenderPass("✓"))
			return nil
		}
		return fmt.Errorf("inconsistent reads: %d empty, %d partial", report.EmptyReads, report.TornReads)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	migrateCmd.Flags().Bool("dry-run", false, "report what would change without writing")
	migrateCmd.Flags().Bool("backup", true, "copy the database before migrating")

	loadtestCmd.Flags().Int("readers", 50, "number of concurrent readers")
	loadtestCmd.Flags().Int("shipments", 500, "shipments per snapshot")
	loadtestCmd.Flags().Int("replaces", 50, "number of snapshot replaces")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(loadtestCmd)
}
