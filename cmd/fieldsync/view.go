package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/fieldagentpro/fieldsync/internal/shipment"
	"github.com/fieldagentpro/fieldsync/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "view",
	Short:   "List cached shipments",
	Long: `List shipments from the local cache, latest delivery first.

Examples:
  fieldsync list
  fieldsync list --status Active --limit 10
  fieldsync list --day 2026-01-20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		day, _ := cmd.Flags().GetString("day")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var rows []shipment.Shipment
		switch {
		case day != "":
			rows, err = a.engine.ListByDay(cmd.Context(), day)
		case status != "":
			rows, err = a.engine.ListByStatus(cmd.Context(), status, limit)
		default:
			rows, err = a.engine.ListActive(cmd.Context())
		}
		if err != nil {
			return err
		}
		if limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}

		if jsonOutput {
			return printJSON(rows)
		}
		if len(rows) == 0 {
			fmt.Println(ui.RenderMuted("No shipments"))
			return nil
		}
		fmt.Print(ui.Table(shipmentHeaders, shipmentRows(rows, true)))
		return nil
	},
}

var agendaCmd = &cobra.Command{
	Use:     "agenda [day]",
	GroupID: "view",
	Short:   "Show shipments grouped by day",
	Long: `Show the agenda for one day, or a per-day overview of the whole cache when
no day is given.

The day may be YYYY-MM-DD or a phrase such as "today", "tomorrow" or
"next friday".`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) > 0 {
			day, err := resolveDay(strings.Join(args, " "), time.Now())
			if err != nil {
				return err
			}
			rows, err := a.engine.ListByDay(cmd.Context(), day)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(rows)
			}
			fmt.Printf("\n%s %s\n\n", ui.RenderAccent("📅"), ui.RenderHeader(day))
			if len(rows) == 0 {
				fmt.Println(ui.RenderMuted("Nothing scheduled"))
				return nil
			}
			fmt.Print(ui.Table(shipmentHeaders[1:], shipmentRows(rows, false)))
			return nil
		}

		rows, err := a.engine.ListActive(cmd.Context())
		if err != nil {
			return err
		}
		groups := shipment.GroupByDay(rows)
		marks := shipment.MarkDays(rows)

		if jsonOutput {
			return printJSON(groups)
		}
		if len(groups) == 0 {
			fmt.Println(ui.RenderMuted("No shipments"))
			return nil
		}

		table := make([][]string, 0, len(groups))
		for _, day := range shipment.Days(groups) {
			m := marks[day]
			var dots []string
			if m.HasActive {
				dots = append(dots, ui.RenderPass("● active"))
			}
			if m.HasPending {
				dots = append(dots, ui.RenderWarn("● pending"))
			}
			table = append(table, []string{day, fmt.Sprintf("%d", m.Count), strings.Join(dots, " ")})
		}
		fmt.Print(ui.Table([]string{"DAY", "TASKS", ""}, table))
		return nil
	},
}

var outboxCmd = &cobra.Command{
	Use:     "outbox",
	GroupID: "view",
	Short:   "List deletes waiting for the remote service",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.engine.PendingDeletes(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Printf("%s Outbox empty\n", ui.RenderPass("✓"))
			return nil
		}

		table := make([][]string, 0, len(entries))
		for _, e := range entries {
			table = append(table, []string{
				fmt.Sprintf("%d", e.ID),
				e.OpType,
				ui.RenderID(fmt.Sprintf("#%d", e.OrderID)),
				e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			})
		}
		fmt.Print(ui.Table([]string{"SEQ", "OP", "ORDER", "QUEUED"}, table))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "view",
	Short:   "Show cache and remote status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.engine.Status(cmd.Context())
		if err != nil {
			return err
		}
		remoteErr := a.client.Health(cmd.Context())

		if jsonOutput {
			return printJSON(map[string]any{
				"store":      st,
				"db_path":    a.db.Path(),
				"remote_url": a.client.BaseURL(),
				"remote_up":  remoteErr == nil,
			})
		}

		fmt.Printf("\n%s Shipment Cache Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Location: %s\n", a.db.Path())
		fmt.Printf("Size: %s\n", ui.FormatBytes(st.SizeBytes))
		fmt.Printf("Shipments: %d\n", st.Shipments)
		for _, s := range []string{shipment.StatusActive, shipment.StatusPending, shipment.StatusCompleted, shipment.StatusBreak} {
			if n := st.ByStatus[s]; n > 0 {
				fmt.Printf("  %s: %d\n", ui.RenderStatus(s), n)
			}
		}
		pending := fmt.Sprintf("%d", st.PendingDeletes)
		if st.PendingDeletes > 0 {
			pending = ui.RenderWarn(pending)
		}
		fmt.Printf("Pending deletes: %s\n", pending)
		if st.LastSyncAt != nil {
			fmt.Printf("Last sync: %s (%d shipments)\n", st.LastSyncAt.Local().Format("2006-01-02 15:04:05"), st.LastSyncCount)
		} else {
			fmt.Printf("Last sync: %s\n", ui.RenderMuted("never"))
		}
		if st.SeedVersion != "" {
			fmt.Printf("Seed: %s\n", st.SeedVersion)
		}
		if remoteErr != nil {
			fmt.Printf("Remote: %s %s\n", a.client.BaseURL(), ui.RenderFail("unreachable"))
		} else {
			fmt.Printf("Remote: %s %s\n", a.client.BaseURL(), ui.RenderPass("ok"))
		}
		fmt.Println()
		return nil
	},
}

var shipmentHeaders = []string{"DAY", "TIME", "ORDER", "STATUS", "COMPANY", "CUSTOMER", "ADDRESS"}

// shipmentRows renders rows for ui.Table. withDay includes the DAY column.
func shipmentRows(rows []shipment.Shipment, withDay bool) [][]string {
	out := make([][]string, 0, len(rows))
	for _, s := range rows {
		row := []string{
			clockOf(s.DeliveryDate, s.EndTime),
			ui.RenderID(fmt.Sprintf("#%d", s.OrderID)),
			ui.RenderStatus(s.Status),
			s.ClientCompany,
			s.CustomerName,
			s.DeliveryAddress,
		}
		if withDay {
			row = append([]string{s.Day()}, row...)
		}
		out = append(out, row)
	}
	return out
}

// clockOf formats the local start (and end) time of a task.
func clockOf(start string, end *string) string {
	t, err := shipment.ParseTimestamp(start)
	if err != nil {
		return start
	}
	out := t.Local().Format("15:04")
	if end != nil {
		if e, err := shipment.ParseTimestamp(*end); err == nil {
			out += "-" + e.Local().Format("15:04")
		}
	}
	return out
}

// resolveDay turns YYYY-MM-DD or a natural-language phrase into a day.
func resolveDay(text string, now time.Time) (string, error) {
	text = strings.TrimSpace(text)
	if shipment.ValidateDay(text) == nil {
		return text, nil
	}
	switch strings.ToLower(text) {
	case "", "today":
		return now.Format(shipment.DayLayout), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, now)
	if err != nil {
		return "", fmt.Errorf("failed to parse day %q: %w", text, err)
	}
	if r == nil {
		return "", fmt.Errorf("could not understand day %q (try YYYY-MM-DD or \"tomorrow\")", text)
	}
	return r.Time.Format(shipment.DayLayout), nil
}

func init() {
	listCmd.Flags().String("status", "", "only shipments with this status (Active, Pending, Completed, Break)")
	listCmd.Flags().Int("limit", 0, "maximum number of shipments (0: no limit)")
	listCmd.Flags().String("day", "", "only shipments on this day (YYYY-MM-DD)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(agendaCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(statusCmd)
}
