package shipment

import (
	"fmt"
	"time"
)

// Coordinates is the nested location object of the remote payload.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// APIShipment is the snake_case shape served by GET /shipments and stored in
// the seed dataset.
type APIShipment struct {
	OrderID             int64       `json:"order_id"`
	Status              string      `json:"status"`
	CustomerName        string      `json:"customer_name"`
	ClientCompany       string      `json:"client_company"`
	DeliveryAddress     string      `json:"delivery_address"`
	ContactPhone        *string     `json:"contact_phone,omitempty"`
	DeliveryDate        string      `json:"delivery_date"`
	EndTime             *string     `json:"end_time,omitempty"`
	TaskType            string      `json:"task_type"`
	LocationCoordinates Coordinates `json:"location_coordinates"`
	Notes               *string     `json:"notes,omitempty"`
}

// ToShipment maps the API shape onto a local row stamped with now.
// A missing notes field becomes the empty string.
func (a *APIShipment) ToShipment(now time.Time) Shipment {
	s := Shipment{
		OrderID:         a.OrderID,
		Status:          a.Status,
		CustomerName:    a.CustomerName,
		ClientCompany:   a.ClientCompany,
		DeliveryAddress: a.DeliveryAddress,
		ContactPhone:    a.ContactPhone,
		DeliveryDate:    a.DeliveryDate,
		EndTime:         a.EndTime,
		TaskType:        a.TaskType,
		Latitude:        a.LocationCoordinates.Latitude,
		Longitude:       a.LocationCoordinates.Longitude,
		UpdatedAt:       now.UTC(),
	}
	if a.Notes != nil {
		s.Notes = *a.Notes
	}
	return s
}

// MapAll converts and validates a whole payload. It fails on the first
// invalid item so callers never act on a partial collection.
func MapAll(items []APIShipment, now time.Time) ([]Shipment, error) {
	rows := make([]Shipment, 0, len(items))
	for i := range items {
		row := items[i].ToShipment(now)
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
