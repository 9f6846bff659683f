package shipment

import (
	"fmt"
	"time"
)

// Known status values. Status is free-form; anything else is kept verbatim.
const (
	StatusActive    = "Active"
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
	StatusBreak     = "Break"
)

// Known task types.
const (
	TaskTypeDelivery = "Delivery"
	TaskTypeBreak    = "Break"
)

// Shipment is a task/delivery record as held in the local store.
// Deleted shipments are simply absent; there is no soft-delete flag.
type Shipment struct {
	// ===== Identity =====
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`

	// ===== Customer & Address =====
	CustomerName    string  `json:"customerName"`
	ClientCompany   string  `json:"clientCompany"`
	DeliveryAddress string  `json:"deliveryAddress"`
	ContactPhone    *string `json:"contactPhone,omitempty"`
	Notes           string  `json:"notes"`

	// ===== Scheduling =====
	DeliveryDate string  `json:"deliveryDate"` // ISO-8601, kept as received
	EndTime      *string `json:"endTime,omitempty"`
	TaskType     string  `json:"taskType"`

	// ===== Location =====
	// (0,0) means the task has no location.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// UpdatedAt is the time of the last local write.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks that the shipment can be stored.
func (s *Shipment) Validate() error {
	if s.OrderID <= 0 {
		return fmt.Errorf("order_id must be positive (got %d)", s.OrderID)
	}
	if s.DeliveryDate == "" {
		return fmt.Errorf("delivery_date is required")
	}
	if _, err := ParseTimestamp(s.DeliveryDate); err != nil {
		return fmt.Errorf("delivery_date %q is not ISO-8601: %w", s.DeliveryDate, err)
	}
	if s.EndTime != nil {
		if _, err := ParseTimestamp(*s.EndTime); err != nil {
			return fmt.Errorf("end_time %q is not ISO-8601: %w", *s.EndTime, err)
		}
	}
	return nil
}

// HasLocation reports whether the shipment carries real coordinates.
func (s *Shipment) HasLocation() bool {
	return s.Latitude != 0 || s.Longitude != 0
}

// IsBreak reports whether the task is an agent break rather than customer work.
func (s *Shipment) IsBreak() bool {
	return s.TaskType == TaskTypeBreak
}

// Day returns the calendar day (YYYY-MM-DD) of the delivery date.
func (s *Shipment) Day() string {
	return DayOf(s.DeliveryDate)
}

// Title is the label shown for the task in lists and digests.
// Breaks use their notes, falling back to "Break".
func (s *Shipment) Title() string {
	if s.IsBreak() {
		if s.Notes != "" {
			return s.Notes
		}
		return "Break"
	}
	if s.ClientCompany != "" {
		return s.ClientCompany
	}
	return s.CustomerName
}

// DigestLine formats the shipment for the active-task digest: "Task #2049 - Acme".
func (s *Shipment) DigestLine() string {
	return fmt.Sprintf("Task #%d - %s", s.OrderID, s.ClientCompany)
}

// ParseTimestamp parses an ISO-8601 timestamp as sent by the remote service,
// with or without fractional seconds.
func ParseTimestamp(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}
