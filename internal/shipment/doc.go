// Package shipment defines the shipment (field task) record shared by the
// local store, the remote adapter and the reconciliation engine.
//
// # Overview
//
// A shipment is one unit of field work assigned to an agent: a delivery, a
// service visit or a break. Locally it is keyed by OrderID and carries the
// camelCase-style Go fields below; the remote service speaks a snake_case JSON
// shape (APIShipment) and the two are converted explicitly:
//
//	{
//	  "order_id": 2049,
//	  "status": "Active",
//	  "customer_name": "John Doe",
//	  "client_company": "Acme Logistics Co.",
//	  "delivery_address": "452 Willow Creek, Suite 101",
//	  "delivery_date": "2026-01-20T10:45:00.000Z",
//	  "task_type": "Delivery",
//	  "location_coordinates": {"latitude": 37.78825, "longitude": -122.4324},
//	  "notes": "Gate code: 4492. Leave at front desk."
//	}
//
// # Seed Dataset
//
// A versioned seed dataset ships embedded in the binary (seed.json). It has the
// same shape as the remote payload and is used by the local reset operation:
//
//	seed, err := shipment.DefaultSeed()
//	rows, err := seed.Rows(time.Now())
//
// # Agenda Helpers
//
// DeliveryDate is kept as the original ISO-8601 text so calendar grouping is a
// plain prefix match on the YYYY-MM-DD part:
//
//	day := shipment.DayOf("2026-01-20T10:45:00.000Z") // "2026-01-20"
//	byDay := shipment.GroupByDay(rows)
package shipment
