package shipment

import (
	"fmt"
	"net/url"
	"strings"
)

// Platform selects the maps URL scheme for DirectionsURL.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// DirectionsURL builds a navigation link to the shipment's coordinates.
// Returns "" when the shipment has no location.
func DirectionsURL(s *Shipment, platform Platform) string {
	if !s.HasLocation() {
		return ""
	}
	destination := fmt.Sprintf("%g,%g", s.Latitude, s.Longitude)

	switch platform {
	case PlatformIOS:
		label := s.DeliveryAddress
		if label == "" {
			label = destination
		}
		return fmt.Sprintf("maps:0,0?q=%s@%s", url.QueryEscape(label), destination)
	case PlatformAndroid:
		return "google.navigation:q=" + destination
	default:
		return WebDirectionsURL(s.Latitude, s.Longitude)
	}
}

// WebDirectionsURL is the platform-independent fallback link.
func WebDirectionsURL(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%g,%g", lat, lng)
}

// DialURL returns a tel: link for the contact phone, or "" when none is set.
func DialURL(phone *string) string {
	if phone == nil {
		return ""
	}
	p := strings.TrimSpace(*phone)
	if p == "" {
		return ""
	}
	return "tel:" + strings.ReplaceAll(p, " ", "")
}
