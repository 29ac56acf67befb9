package model

import "time"

// Location is the best-effort geolocation attached to a visit. A zero value
// means the enricher could not resolve anything.
type Location struct {
	City    string   `json:"city"`
	Region  string   `json:"region"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// Resolved reports whether the enricher produced any usable location data.
func (loc Location) Resolved() bool {
	return loc.City != "" || loc.Region != "" || loc.Country != ""
}

// Visit is one recorded resolution of a short link. Visits are append-only;
// they are never mutated and only disappear together with their link.
type Visit struct {
	ID        int64     `json:"id"`
	LinkCode  string    `json:"link_code"`
	Timestamp time.Time `json:"timestamp"`
	Address   string    `json:"address"`
	Location  *Location `json:"location,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// VisitEvent is the wire payload published to JetStream when a link is
// resolved. The address is carried raw; normalization happens in the
// recorder so the redirect path stays cheap.
type VisitEvent struct {
	ID         string    `json:"id"`
	LinkCode   string    `json:"link_code"`
	Address    string    `json:"address"`
	UserAgent  string    `json:"user_agent"`
	Lat        *float64  `json:"lat,omitempty"`
	Lon        *float64  `json:"lon,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	VisitStreamName     = "VISITS"
	VisitStreamSubject  = "visits.events"
	VisitConsumerName   = "visit-recorder"
	VisitStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
