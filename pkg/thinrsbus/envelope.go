package thinrsbus

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"time"
)

const EnvelopeVersion = "1"

// RawMessage is one entry as read from the queue, before mapping.
type RawMessage struct {
	ID     string                 // Stream entry ID (e.g., "1678886400123-0")
	Values map[string]interface{} // Flat field map as stored by XADD
}

// Envelope is the transport-neutral view of one received message: its
// identity, the headers consumers match on, and the undecoded body.
//
// An Envelope never changes after it is mapped; it is shared by every
// consumer in a fan-out, so all accessors return copies.
type Envelope struct {
	id         string
	version    string
	msgType    string
	traceID    string
	producedAt string
	producer   string
	headers    map[string]string
	body       []byte
}

// ID returns the transport-assigned message ID.
func (e *Envelope) ID() string { return e.id }

// Version returns the envelope version (always "1" today).
func (e *Envelope) Version() string { return e.version }

// Type returns the message type used for matching (e.g. "order.created").
func (e *Envelope) Type() string { return e.msgType }

// TraceID returns the distributed tracing ID, if any.
func (e *Envelope) TraceID() string { return e.traceID }

// ProducedAt returns the ISO 8601 production timestamp, if any.
func (e *Envelope) ProducedAt() string { return e.producedAt }

// Producer returns the producing service identifier, if any.
func (e *Envelope) Producer() string { return e.producer }

// Header returns a non-reserved field carried with the message.
func (e *Envelope) Header(name string) (string, bool) {
	v, ok := e.headers[name]
	return v, ok
}

// Headers returns a copy of all non-reserved fields.
func (e *Envelope) Headers() map[string]string {
	return maps.Clone(e.headers)
}

// Body returns a fresh reader over the undecoded payload.
func (e *Envelope) Body() io.Reader {
	return bytes.NewReader(e.body)
}

// BodyLen returns the payload size in bytes.
func (e *Envelope) BodyLen() int { return len(e.body) }

// EnvelopeMapper turns a raw queue message into an Envelope. Implementations
// must be deterministic, must not modify msg and must not do any I/O.
type EnvelopeMapper interface {
	Map(msg *RawMessage) (*Envelope, error)
}

// EnvelopeMapperFunc adapts a function to EnvelopeMapper.
type EnvelopeMapperFunc func(msg *RawMessage) (*Envelope, error)

func (f EnvelopeMapperFunc) Map(msg *RawMessage) (*Envelope, error) {
	return f(msg)
}

var reservedFields = map[string]bool{
	"v":           true,
	"type":        true,
	"payload":     true,
	"produced_at": true,
	"trace_id":    true,
	"producer":    true,
}

// StreamFieldsMapper maps the flat Redis stream field layout written by
// Message.ToStreamFields. Unknown string fields become headers.
type StreamFieldsMapper struct{}

// Map parses an Envelope from Redis stream fields.
//
// Returns ErrMessageTrimmed if fields are nil (trimmed message).
// Returns ErrUnknownVersion if v field is not "1".
// Returns MissingFieldError if a required field (type, payload) is absent.
// Treats missing "v" field as version "1" (backward compat).
func (StreamFieldsMapper) Map(msg *RawMessage) (*Envelope, error) {
	if msg == nil || msg.Values == nil {
		return nil, ErrMessageTrimmed
	}
	fields := msg.Values

	env := &Envelope{
		id:      msg.ID,
		version: EnvelopeVersion,
	}

	if v, ok := fields["v"]; ok {
		vStr, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field 'v' is not a string")
		}
		if vStr != EnvelopeVersion {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, vStr)
		}
	}

	typeVal, ok := fields["type"]
	if !ok {
		return nil, &MissingFieldError{Field: "type"}
	}
	typeStr, ok := typeVal.(string)
	if !ok {
		return nil, fmt.Errorf("field 'type' is not a string")
	}
	env.msgType = typeStr

	payloadVal, ok := fields["payload"]
	if !ok {
		return nil, &MissingFieldError{Field: "payload"}
	}
	payloadStr, ok := payloadVal.(string)
	if !ok {
		return nil, fmt.Errorf("field 'payload' is not a string")
	}
	env.body = []byte(payloadStr)

	if producedAtVal, ok := fields["produced_at"]; ok {
		producedAtStr, ok := producedAtVal.(string)
		if !ok {
			return nil, fmt.Errorf("field 'produced_at' is not a string")
		}
		env.producedAt = producedAtStr
	}

	if traceIDVal, ok := fields["trace_id"]; ok {
		if traceIDStr, ok := traceIDVal.(string); ok {
			env.traceID = traceIDStr
		}
	}

	if producerVal, ok := fields["producer"]; ok {
		if producerStr, ok := producerVal.(string); ok {
			env.producer = producerStr
		}
	}

	for k, v := range fields {
		if reservedFields[k] {
			continue
		}
		if s, ok := v.(string); ok {
			if env.headers == nil {
				env.headers = make(map[string]string)
			}
			env.headers[k] = s
		}
	}

	return env, nil
}

// Message is the producer-side shape of an envelope.
type Message struct {
	Type       string            // Event type / message type (required)
	Payload    string            // Body, usually JSON (required)
	TraceID    string            // Distributed tracing ID (optional)
	ProducedAt string            // ISO 8601 timestamp (set automatically on send)
	Producer   string            // Producing service identifier (optional)
	Headers    map[string]string // Extra fields (optional, reserved names ignored)
}

// ToStreamFields converts the message to a flat map suitable for XADD.
// Sets ProducedAt to current time if empty.
func (m *Message) ToStreamFields() map[string]interface{} {
	fields := make(map[string]interface{})

	for k, v := range m.Headers {
		if !reservedFields[k] {
			fields[k] = v
		}
	}

	fields["v"] = EnvelopeVersion
	fields["type"] = m.Type
	fields["payload"] = m.Payload

	if m.ProducedAt == "" {
		fields["produced_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	} else {
		fields["produced_at"] = m.ProducedAt
	}

	if m.TraceID != "" {
		fields["trace_id"] = m.TraceID
	}
	if m.Producer != "" {
		fields["producer"] = m.Producer
	}

	return fields
}
