package realtime

import (
	"encoding/json"
	"fmt"

	"minix/internal/drive"
	"minix/internal/wire"
)

// Encode serializes ev for a remote feed.
func Encode(ev drive.ChangeEvent) ([]byte, error) {
	data, err := json.Marshal(wire.FromEvent(ev))
	if err != nil {
		return nil, fmt.Errorf("encoding change event: %w", err)
	}
	return data, nil
}

// Decode parses an event produced by Encode.
func Decode(data []byte) (drive.ChangeEvent, error) {
	var w wire.Event
	if err := json.Unmarshal(data, &w); err != nil {
		return drive.ChangeEvent{}, fmt.Errorf("decoding change event: %w", err)
	}
	ev, err := w.ChangeEvent()
	if err != nil {
		return drive.ChangeEvent{}, fmt.Errorf("decoding change event: %w", err)
	}
	return ev, nil
}
