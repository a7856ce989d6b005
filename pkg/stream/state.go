package stream

import (
	"encoding/json"
	"fmt"
)

// State is the stream connection state.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateLinkReady
	StateStreaming
	StatePaused
	StateDisconnected
)

var stateNames = [...]string{
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateLinkReady:    "link_ready",
	StateStreaming:    "streaming",
	StatePaused:       "paused",
	StateDisconnected: "disconnected",
}

// String returns the string representation of the state.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("stream: unknown state %q", name)
}

// Event is a link event delivered to the Controller.
type Event int

const (
	EventConnected Event = iota
	EventDisconnected
	EventLinkReady
	EventStreaming
	// EventPause stops the pipeline and keeps the link; a later
	// EventLinkReady resumes streaming.
	EventPause
)

var eventNames = [...]string{
	EventConnected:    "connected",
	EventDisconnected: "disconnected",
	EventLinkReady:    "link_ready",
	EventStreaming:    "streaming",
	EventPause:        "pause",
}

// String returns the string representation of the event.
func (e Event) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for i, n := range eventNames {
		if n == name {
			*e = Event(i)
			return nil
		}
	}
	return fmt.Errorf("stream: unknown event %q", name)
}

// Role is the part the device plays on the link.
type Role int

const (
	// RoleGateway produces audio and sends it to one or two headsets.
	RoleGateway Role = iota
	// RoleHeadset receives audio from a gateway.
	RoleHeadset
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RoleGateway:
		return "gateway"
	case RoleHeadset:
		return "headset"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole parses a role name.
func ParseRole(s string) (Role, error) {
	switch s {
	case "gateway":
		return RoleGateway, nil
	case "headset":
		return RoleHeadset, nil
	}
	return 0, fmt.Errorf("stream: unknown role %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Transport is the kind of isochronous channel in use.
type Transport int

const (
	// TransportCIS uses connected channels, one per headset.
	TransportCIS Transport = iota
	// TransportBIS broadcasts a single channel.
	TransportBIS
)

// String returns the string representation of the transport.
func (t Transport) String() string {
	switch t {
	case TransportCIS:
		return "cis"
	case TransportBIS:
		return "bis"
	default:
		return fmt.Sprintf("Transport(%d)", int(t))
	}
}

// ParseTransport parses a transport name.
func ParseTransport(s string) (Transport, error) {
	switch s {
	case "cis":
		return TransportCIS, nil
	case "bis":
		return TransportBIS, nil
	}
	return 0, fmt.Errorf("stream: unknown transport %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Transport) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Transport) UnmarshalText(b []byte) error {
	v, err := ParseTransport(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
