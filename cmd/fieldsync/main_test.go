package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fieldagentpro/fieldsync/internal/shipment"
	"github.com/fieldagentpro/fieldsync/internal/store"
)

func TestRootCommand_FlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Chdir(dir)

	dbPath := filepath.Join(dir, "data", "fieldsync.db")
	remoteURL := "http://127.0.0.1:1"

	rootCmd.SetArgs([]string{"--db", dbPath, "--remote", remoteURL, "--timeout", "2s", "list", "--json"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if cfg.DBPath != dbPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, dbPath)
	}
	if cfg.RemoteURL != remoteURL {
		t.Errorf("RemoteURL = %q, want %q", cfg.RemoteURL, remoteURL)
	}
	if cfg.RemoteTimeout != 2*time.Second {
		t.Errorf("RemoteTimeout = %v, want 2s", cfg.RemoteTimeout)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()
	st, err := db.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if st.Shipments == 0 || st.SeedVersion == "" {
		t.Errorf("fresh cache was not seeded: %+v", st)
	}
}

func TestResolveDay(t *testing.T) {
	now := time.Date(2026, 1, 20, 9, 0, 0, 0, time.Local)

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "2026-01-22", want: "2026-01-22"},
		{input: "today", want: "2026-01-20"},
		{input: "  Today ", want: "2026-01-20"},
		{input: "tomorrow", want: "2026-01-21"},
		{input: "yesterday", want: "2026-01-19"},
		{input: "blorp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := resolveDay(tt.input, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("resolveDay(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveDay(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("resolveDay(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestShipmentRows(t *testing.T) {
	end := "2026-01-20T11:30:00.000Z"
	rows := []shipment.Shipment{{
		OrderID:         2049,
		Status:          shipment.StatusActive,
		CustomerName:    "Jane",
		ClientCompany:   "Acme",
		DeliveryAddress: "1 Main St",
		DeliveryDate:    "2026-01-20T10:45:00.000Z",
		EndTime:         &end,
	}}

	withDay := shipmentRows(rows, true)
	if len(withDay) != 1 || len(withDay[0]) != len(shipmentHeaders) {
		t.Fatalf("Expected 1 row of %d cells, got %v", len(shipmentHeaders), withDay)
	}
	if withDay[0][0] != "2026-01-20" {
		t.Errorf("Expected day column, got %q", withDay[0][0])
	}
	if !strings.Contains(withDay[0][2], "2049") {
		t.Errorf("Expected order id in row, got %q", withDay[0][2])
	}

	withoutDay := shipmentRows(rows, false)
	if len(withoutDay[0]) != len(shipmentHeaders)-1 {
		t.Errorf("Expected %d cells without day, got %d", len(shipmentHeaders)-1, len(withoutDay[0]))
	}
}

func TestClockOf(t *testing.T) {
	if got := clockOf("not a time", nil); got != "not a time" {
		t.Errorf("Expected raw value for unparseable time, got %q", got)
	}

	start := time.Date(2026, 1, 20, 10, 45, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute).Format(time.RFC3339Nano)
	want := start.Local().Format("15:04") + "-" + start.Add(45*time.Minute).Local().Format("15:04")
	if got := clockOf(start.Format(time.RFC3339Nano), &end); got != want {
		t.Errorf("clockOf() = %q, want %q", got, want)
	}
}
