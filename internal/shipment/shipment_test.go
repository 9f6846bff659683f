package shipment

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestShipment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Shipment
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid shipment",
			s:    Shipment{OrderID: 2049, DeliveryDate: "2026-01-20T10:45:00.000Z"},
		},
		{
			name: "valid without fractional seconds",
			s:    Shipment{OrderID: 1, DeliveryDate: "2026-01-20T10:45:00Z"},
		},
		{
			name:    "zero order id",
			s:       Shipment{DeliveryDate: "2026-01-20T10:45:00Z"},
			wantErr: true,
			errMsg:  "order_id must be positive",
		},
		{
			name:    "missing delivery date",
			s:       Shipment{OrderID: 1},
			wantErr: true,
			errMsg:  "delivery_date is required",
		},
		{
			name:    "date only",
			s:       Shipment{OrderID: 1, DeliveryDate: "2026-01-20"},
			wantErr: true,
			errMsg:  "not ISO-8601",
		},
		{
			name:    "bad end time",
			s:       Shipment{OrderID: 1, DeliveryDate: "2026-01-20T10:45:00Z", EndTime: strPtr("noon")},
			wantErr: true,
			errMsg:  "end_time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestAPIShipment_ToShipment(t *testing.T) {
	payload := `{
		"order_id": 2049,
		"status": "Active",
		"customer_name": "John Doe",
		"client_company": "Acme Logistics Co.",
		"delivery_address": "452 Willow Creek, Suite 101",
		"delivery_date": "2026-01-20T10:45:00.000Z",
		"task_type": "Delivery",
		"location_coordinates": {"latitude": 37.78825, "longitude": -122.4324}
	}`

	var api APIShipment
	if err := json.Unmarshal([]byte(payload), &api); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	now := time.Date(2026, 1, 19, 8, 0, 0, 0, time.UTC)
	s := api.ToShipment(now)

	if s.OrderID != 2049 {
		t.Errorf("OrderID = %d, want 2049", s.OrderID)
	}
	if s.ClientCompany != "Acme Logistics Co." {
		t.Errorf("ClientCompany = %q", s.ClientCompany)
	}
	if s.Latitude != 37.78825 || s.Longitude != -122.4324 {
		t.Errorf("coordinates = (%v,%v)", s.Latitude, s.Longitude)
	}
	if s.Notes != "" {
		t.Errorf("Notes = %q, want empty for missing notes", s.Notes)
	}
	if s.ContactPhone != nil || s.EndTime != nil {
		t.Errorf("optional fields should be nil, got phone=%v end=%v", s.ContactPhone, s.EndTime)
	}
	if !s.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", s.UpdatedAt, now)
	}
}

func TestMapAll_RejectsWholePayload(t *testing.T) {
	items := []APIShipment{
		{OrderID: 1, DeliveryDate: "2026-01-20T10:45:00Z"},
		{OrderID: 0, DeliveryDate: "2026-01-20T10:45:00Z"},
	}
	rows, err := MapAll(items, time.Now())
	if err == nil {
		t.Fatal("MapAll() expected error for invalid item")
	}
	if rows != nil {
		t.Errorf("MapAll() returned %d rows alongside error", len(rows))
	}
}

func TestDayOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-01-20T10:45:00.000Z", "2026-01-20"},
		{"2026-01-20", "2026-01-20"},
		{"2026", "2026"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DayOf(tt.in); got != tt.want {
			t.Errorf("DayOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateDay(t *testing.T) {
	if err := ValidateDay("2026-01-20"); err != nil {
		t.Errorf("ValidateDay(valid) error = %v", err)
	}
	for _, bad := range []string{"", "2026-1-20", "2026-13-01", "20-01-2026", "2026-01-20%"} {
		if err := ValidateDay(bad); err == nil {
			t.Errorf("ValidateDay(%q) expected error", bad)
		}
	}
}

func TestGroupByDayAndMarks(t *testing.T) {
	rows := []Shipment{
		{OrderID: 1, Status: StatusActive, DeliveryDate: "2026-01-20T10:45:00.000Z"},
		{OrderID: 2, Status: StatusCompleted, DeliveryDate: "2026-01-20T08:00:00.000Z"},
		{OrderID: 3, Status: StatusPending, DeliveryDate: "2026-01-21T09:00:00.000Z"},
	}

	groups := GroupByDay(rows)
	if len(groups["2026-01-20"]) != 2 || len(groups["2026-01-21"]) != 1 {
		t.Fatalf("GroupByDay() = %v", groups)
	}
	if groups["2026-01-20"][0].OrderID != 1 {
		t.Errorf("GroupByDay() did not keep input order")
	}

	days := Days(groups)
	if len(days) != 2 || days[0] != "2026-01-20" || days[1] != "2026-01-21" {
		t.Errorf("Days() = %v", days)
	}

	marks := MarkDays(rows)
	if m := marks["2026-01-20"]; !m.HasActive || m.HasPending || m.Count != 2 {
		t.Errorf("marks[2026-01-20] = %+v", m)
	}
	if m := marks["2026-01-21"]; m.HasActive || !m.HasPending {
		t.Errorf("marks[2026-01-21] = %+v", m)
	}
}

func TestShipment_TitleAndDigest(t *testing.T) {
	brk := Shipment{OrderID: 9, TaskType: TaskTypeBreak}
	if got := brk.Title(); got != "Break" {
		t.Errorf("Title() = %q, want Break", got)
	}
	brk.Notes = "Lunch break"
	if got := brk.Title(); got != "Lunch break" {
		t.Errorf("Title() = %q, want notes", got)
	}

	s := Shipment{OrderID: 2049, ClientCompany: "Acme Logistics Co.", TaskType: TaskTypeDelivery}
	if got := s.DigestLine(); got != "Task #2049 - Acme Logistics Co." {
		t.Errorf("DigestLine() = %q", got)
	}
}

func TestDirectionsURL(t *testing.T) {
	s := &Shipment{Latitude: 37.78825, Longitude: -122.4324, DeliveryAddress: "452 Willow Creek"}

	tests := []struct {
		platform Platform
		want     string
	}{
		{PlatformAndroid, "google.navigation:q=37.78825,-122.4324"},
		{PlatformIOS, "maps:0,0?q=452+Willow+Creek@37.78825,-122.4324"},
		{PlatformWeb, "https://www.google.com/maps/dir/?api=1&destination=37.78825,-122.4324"},
	}
	for _, tt := range tests {
		if got := DirectionsURL(s, tt.platform); got != tt.want {
			t.Errorf("DirectionsURL(%s) = %q, want %q", tt.platform, got, tt.want)
		}
	}

	if got := DirectionsURL(&Shipment{}, PlatformWeb); got != "" {
		t.Errorf("DirectionsURL(no location) = %q, want empty", got)
	}
}

func TestDialURL(t *testing.T) {
	if got := DialURL(nil); got != "" {
		t.Errorf("DialURL(nil) = %q", got)
	}
	if got := DialURL(strPtr("  ")); got != "" {
		t.Errorf("DialURL(blank) = %q", got)
	}
	if got := DialURL(strPtr("+1 415 555 0142")); got != "tel:+14155550142" {
		t.Errorf("DialURL() = %q", got)
	}
}

func TestDefaultSeed(t *testing.T) {
	seed, err := DefaultSeed()
	if err != nil {
		t.Fatalf("DefaultSeed() error = %v", err)
	}
	rows, err := seed.Rows(time.Now())
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("default seed is empty")
	}

	found := false
	for _, r := range rows {
		if r.OrderID == 2049 {
			found = true
		}
	}
	if !found {
		t.Error("default seed should contain order 2049")
	}
}

func TestLoadSeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad version", `{"version":"1.0","shipments":[]}`},
		{"duplicate ids", `{"version":"v1.0.0","shipments":[
			{"order_id":1,"delivery_date":"2026-01-20T10:45:00Z"},
			{"order_id":1,"delivery_date":"2026-01-20T10:45:00Z"}]}`},
		{"invalid record", `{"version":"v1.0.0","shipments":[{"order_id":1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadSeed(strings.NewReader(tt.body)); err == nil {
				t.Error("LoadSeed() expected error")
			}
		})
	}
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	body := `{"version":"v2.1.0","shipments":[{"order_id":5,"delivery_date":"2026-01-20T10:45:00Z"}]}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write seed: %v", err)
	}

	seed, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("LoadSeedFile() error = %v", err)
	}
	if seed.Version != "v2.1.0" || len(seed.Items) != 1 {
		t.Errorf("seed = %+v", seed)
	}
	if !seed.Newer("v1.0.0") || seed.Newer("v2.1.0") || !seed.Newer("") {
		t.Error("Newer() comparisons wrong")
	}
}
