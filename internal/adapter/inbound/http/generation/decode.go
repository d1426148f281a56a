package generationhttp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/thumbforge/server/internal/port/inbound"
)

// Decoder reads generation events from an NDJSON stream.
type Decoder struct {
	reader *bufio.Reader
}

// NewDecoder creates a new event decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		reader: bufio.NewReader(r),
	}
}

// Next returns the next event, skipping blank and heartbeat lines.
// It returns io.EOF when the stream ends.
func (d *Decoder) Next() (inbound.GenerationEvent, error) {
	for {
		line, err := d.reader.ReadBytes('\n')
		if err != nil && (err != io.EOF || len(bytes.TrimSpace(line)) == 0) {
			return nil, err
		}

		line = bytes.TrimSpace(line)

		// Empty or comment line
		if len(line) == 0 || line[0] == ':' {
			continue
		}

		return decodeEvent(line)
	}
}

func decodeEvent(line []byte) (inbound.GenerationEvent, error) {
	var probe struct {
		Type inbound.EventType `json:"type"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch probe.Type {
	case inbound.EventStart:
		return decodeAs[inbound.StartEvent](line)
	case inbound.EventProgress:
		return decodeAs[inbound.ProgressEvent](line)
	case inbound.EventImage:
		return decodeAs[inbound.ImageEvent](line)
	case inbound.EventVariantError:
		return decodeAs[inbound.VariantErrorEvent](line)
	case inbound.EventError:
		return decodeAs[inbound.ErrorEvent](line)
	case inbound.EventDone:
		return decodeAs[inbound.DoneEvent](line)
	default:
		return nil, fmt.Errorf("unknown event type %q", probe.Type)
	}
}

func decodeAs[T inbound.GenerationEvent](line []byte) (inbound.GenerationEvent, error) {
	var ev T
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", ev.EventType(), err)
	}
	return ev, nil
}
