package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager stamps and publishes events on a Bus
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates an event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("component", "events").Logger(),
	}
}

// Bus returns the underlying bus for subscribers
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit publishes an event with untyped data
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	if m == nil {
		return
	}
	m.log.Debug().Str("event_type", string(eventType)).Str("module", module).Msg("Emitting event")
	m.bus.Publish(&Event{
		Type:      eventType,
		Module:    module,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// EmitTyped publishes an event whose payload is a typed EventData struct
func (m *Manager) EmitTyped(module string, data EventData) {
	if m == nil {
		return
	}
	m.Emit(data.EventType(), module, toMap(data))
}

func toMap(data EventData) map[string]interface{} {
	raw, err := json.Marshal(data)
	if err != nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}
