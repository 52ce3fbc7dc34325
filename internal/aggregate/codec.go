package aggregate

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"pulsefeed/internal/types"
)

// eventCodec serializes raw events for the window event log. Entries are
// zstd-compressed JSON: a hot window can accumulate hundreds of repeats and
// the log lives in cache memory until flush.
type eventCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// newEventCodec creates a codec with shared encoder/decoder instances.
// EncodeAll/DecodeAll are safe for concurrent use.
func newEventCodec() (*eventCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("aggregate: create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("aggregate: create zstd decoder: %w", err)
	}
	return &eventCodec{enc: enc, dec: dec}, nil
}

// encode marshals and compresses one event log entry.
func (c *eventCodec) encode(ev *types.NotificationEvent) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("aggregate: encode event: %w", err)
	}
	return c.enc.EncodeAll(raw, nil), nil
}

// decode decompresses and unmarshals one event log entry.
func (c *eventCodec) decode(data []byte) (*types.NotificationEvent, error) {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("aggregate: decompress event: %w", err)
	}
	var ev types.NotificationEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("aggregate: decode event: %w", err)
	}
	return &ev, nil
}
