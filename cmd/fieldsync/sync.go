package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/fieldagentpro/fieldsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Flush pending deletes and pull the remote collection",
	Long: `Reconcile the local cache with the remote shipment service.

A sync:
  1. Sends every queued delete to the remote service
  2. Fetches the full remote collection
  3. Drops orders that still have a pending delete
  4. Replaces the local table with the result in one transaction

If the remote service is unreachable the cache is left untouched and the
command reports offline mode.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.SyncFromRemote(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(res)
		}
		if res.Offline {
			fmt.Printf("%s Remote unreachable, showing cached data\n", ui.RenderWarn("⚠"))
			if res.Flushed > 0 {
				fmt.Printf("   Flushed: %d pending deletes\n", res.Flushed)
			}
			return nil
		}
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), res.Duration.Round(time.Millisecond))
		fmt.Printf("   Fetched: %d\n", res.Fetched)
		if res.Suppressed > 0 {
			fmt.Printf("   Held back (delete pending): %d\n", res.Suppressed)
		}
		fmt.Printf("   Cached: %d\n", res.Written)
		fmt.Printf("   Flushed: %d\n", res.Flushed)
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:     "flush",
	GroupID: "sync",
	Short:   "Send queued deletes to the remote service",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.engine.FlushPendingDeletes(cmd.Context())
		if err != nil {
			return err
		}
		left, err := a.db.CountPendingDeletes(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(map[string]int{"flushed": n, "pending": left})
		}
		fmt.Printf("%s Flushed %d deletes", ui.RenderPass("✓"), n)
		if left > 0 {
			fmt.Printf(", %s", ui.RenderWarn(fmt.Sprintf("%d still pending", left)))
		}
		fmt.Println()
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <order-id>...",
	GroupID: "sync",
	Short:   "Delete shipments locally and remotely",
	Long: `Delete shipments from the local cache at once and ask the remote service
to delete them too. A delete the remote service does not confirm stays queued
and is retried on the next sync; the order will not reappear locally meanwhile.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid order id %q", arg)
			}
			ids = append(ids, id)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range ids {
			res, err := a.engine.DeleteShipment(cmd.Context(), id)
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := printJSON(res); err != nil {
					return err
				}
				continue
			}
			switch {
			case res.Synced:
				fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), ui.RenderID(fmt.Sprintf("#%d", id)))
			default:
				fmt.Printf("%s Deleted %s locally, remote delete queued\n", ui.RenderWarn("⚠"), ui.RenderID(fmt.Sprintf("#%d", id)))
			}
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "maint",
	Short:   "Replace all shipments with the seed dataset",
	Long: `Replace every cached shipment with the seed dataset, clear the outbox of
pending deletes, and ask the remote service to reset its data too.

Pending deletes are discarded. You will be asked to confirm when running in
a terminal unless --yes is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !ui.IsInteractive() {
				return fmt.Errorf("refusing to reset without --yes when not running in a terminal")
			}
			confirmed := false
			err := huh.NewConfirm().
				Title("Reset all shipments to the seed dataset?").
				Description("Local changes and pending deletes will be lost.").
				Affirmative("Reset").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Cancelled")
				return nil
			}
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.ResetToSeed(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("%s Reset to seed %s: %d shipments\n", ui.RenderPass("✓"), res.Version, res.Written)
		if res.RemoteReset {
			fmt.Printf("   Remote reset: %d shipments\n", res.RemoteCount)
		} else {
			fmt.Printf("   %s\n", ui.RenderWarn("Remote reset failed; the next sync will restore remote data"))
		}
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	resetCmd.Flags().BoolP("yes", "y", false, "skip confirmation")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(resetCmd)
}
