package observability

const serviceName = "messenger"

// EventEnvelope is the shape every event published to the exchange carries.
// Consumers route on service and event_name; the connection id is promoted
// out of the payload so websocket lifecycle events can be correlated without
// parsing the free-form part.
type EventEnvelope struct {
	Service   string      `json:"service"`
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	ConnID    string      `json:"conn_id,omitempty"`
	Payload   interface{} `json:"payload"`
}

// WSEvent builds the envelope for a websocket lifecycle event.
func WSEvent(name, connID string, payload interface{}) EventEnvelope {
	return EventEnvelope{
		Service:   serviceName,
		EventType: "ws_events",
		EventName: name,
		ConnID:    connID,
		Payload:   payload,
	}
}

// BuildHeaders assembles the AMQP correlation headers; empty values are
// omitted.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
