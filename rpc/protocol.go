// Package rpc implements the agent's message protocol: request, response and
// event envelopes, the method router and the line-delimited JSON transport.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Request is sent by the host. ID is echoed unchanged in the Response.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Response answers exactly one Request. On error Returns holds the message.
type Response struct {
	ID      int64  `json:"id"`
	Result  string `json:"result"`
	Returns any    `json:"returns"`
}

func okResponse(id int64, v any) Response {
	return Response{ID: id, Result: ResultOK, Returns: v}
}

func errorResponse(id int64, err error) Response {
	return Response{ID: id, Result: ResultError, Returns: err.Error()}
}

// Event is an out-of-band notification. On the wire the payload fields are
// flattened next to the "event" key.
type Event struct {
	Name    string
	Payload any
}

func (e Event) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("event %s payload must be an object: %w", e.Name, err)
		}
	}
	fields["event"] = e.Name
	return json.Marshal(fields)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	name, _ := fields["event"].(string)
	if name == "" {
		return fmt.Errorf("missing event name")
	}
	delete(fields, "event")
	e.Name = name
	e.Payload = fields
	return nil
}

// Sink receives events. Implementations must be safe for concurrent use:
// hook and observer callbacks emit from target threads.
type Sink interface {
	Emit(name string, payload any)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(name string, payload any)

func (f SinkFunc) Emit(name string, payload any) { f(name, payload) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(string, any) {})
