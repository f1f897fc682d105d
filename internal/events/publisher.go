package events

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/voicecoach/voicecoach/internal/metrics"
)

// Sink receives every published event in addition to the bus. MQTTSink
// implements it.
type Sink interface {
	Send(e Event)
}

// Publisher fans library events out to the bus and an optional sink.
type Publisher struct {
	bus  *Bus
	sink Sink
	log  zerolog.Logger
}

// NewPublisher creates a Publisher. sink may be nil.
func NewPublisher(bus *Bus, sink Sink, log zerolog.Logger) *Publisher {
	return &Publisher{bus: bus, sink: sink, log: log.With().Str("component", "events").Logger()}
}

// Publish records an event. Encoding failures are logged and dropped.
func (p *Publisher) Publish(eventType string, payload any) {
	e, err := p.bus.Publish(eventType, payload)
	if err != nil {
		p.log.Warn().Err(err).Str("event", eventType).Msg("dropping event")
		return
	}
	if p.sink != nil {
		p.sink.Send(e)
	}
	metrics.EventsPublishedTotal.WithLabelValues(eventType).Inc()
	p.log.Debug().Str("event", eventType).Str("id", e.ID).Msg("event published")
}

// Bus returns the underlying bus.
func (p *Publisher) Bus() *Bus { return p.bus }

func jsonEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
