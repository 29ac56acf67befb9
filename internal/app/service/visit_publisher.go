package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/LinkTrace/internal/app/model"
)

// VisitPublisher publishes visit events to NATS JetStream. Publishing is the
// only work done on the redirect path; normalization and geolocation happen
// in the recorder so the redirect never waits on them.
type VisitPublisher struct {
	js nats.JetStreamContext
}

// NewVisitPublisher creates a new visit event publisher.
func NewVisitPublisher(js nats.JetStreamContext) *VisitPublisher {
	return &VisitPublisher{js: js}
}

// Publish emits one visit event for the given link. lat/lon are optional
// client-supplied coordinates; when present the recorder reverse-geocodes
// them instead of looking up the address.
func (p *VisitPublisher) Publish(linkCode, address, userAgent string, lat, lon *float64) error {
	event := model.VisitEvent{
		ID:         uuid.New().String(),
		LinkCode:   linkCode,
		Address:    address,
		UserAgent:  userAgent,
		Lat:        lat,
		Lon:        lon,
		OccurredAt: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.VisitStreamSubject, data)
	return err
}
