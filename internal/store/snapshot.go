package store

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/plcsim/internal/iotable"
)

// PointState is the journaled state of one I/O point. Descriptive metadata
// lives in the program, not in every snapshot.
type PointState struct {
	Tag     string       `msgpack:"t"`
	Kind    iotable.Kind `msgpack:"k"`
	Digital bool         `msgpack:"d,omitempty"`
	Analog  float64      `msgpack:"a,omitempty"`
	Fault   bool         `msgpack:"f,omitempty"`
}

// Value returns the point value as bool or float64, matching iotable.Point.
func (p PointState) Value() any {
	if p.Kind.IsAnalog() {
		return p.Analog
	}
	return p.Digital
}

func encodeSnapshot(snap iotable.Snapshot) ([]byte, error) {
	points := snap.Points()
	states := make([]PointState, len(points))
	for i, p := range points {
		states[i] = PointState{
			Tag:     p.Tag,
			Kind:    p.Kind,
			Digital: p.Digital,
			Analog:  p.Analog,
			Fault:   p.Fault,
		}
	}
	data, err := msgpack.Marshal(states)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) ([]PointState, error) {
	var states []PointState
	if err := msgpack.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return states, nil
}
