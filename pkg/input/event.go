// Package input turns button presses into synthesizer key events.
//
// Buttons are identified by index. Events travel through a small bounded
// Queue: the producer side never blocks and drops events when the consumer
// falls behind.
package input

import (
	"encoding/json"
	"fmt"
)

// ButtonState is the level of a button.
type ButtonState int

const (
	Released ButtonState = iota
	Pressed
)

// String returns the string representation of the state.
func (s ButtonState) String() string {
	switch s {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("ButtonState(%d)", int(s))
	}
}

// MarshalJSON implements json.Marshaler.
func (s ButtonState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ButtonState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "pressed":
		*s = Pressed
	case "released":
		*s = Released
	default:
		return fmt.Errorf("input: unknown button state %q", name)
	}
	return nil
}

// Event is a button edge.
type Event struct {
	Index int         `json:"index"`
	State ButtonState `json:"state"`
}

func (e Event) String() string {
	return fmt.Sprintf("button %d %s", e.Index, e.State)
}
