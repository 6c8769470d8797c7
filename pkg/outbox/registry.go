package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ErrNoDecoder is returned by Decode for an event type/version pair that was
// never added. Consumers treat it as "not for me".
var ErrNoDecoder = errors.New("outbox: no decoder")

// DecodeFunc turns an envelope's data into a typed event.
type DecodeFunc func(data json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Decoders maps (event type, version) to a DecodeFunc. Safe for concurrent use.
type Decoders struct {
	mu    sync.RWMutex
	funcs map[decoderKey]DecodeFunc
}

func NewDecoders() *Decoders {
	return &Decoders{funcs: make(map[decoderKey]DecodeFunc)}
}

// Add registers fn. Adding the same pair twice is an error so two packages
// cannot silently disagree on a payload shape.
func (d *Decoders) Add(eventType enums.OutboxEventType, version int, fn DecodeFunc) error {
	if !eventType.IsValid() {
		return fmt.Errorf("outbox: unknown event type %q", eventType)
	}
	if version <= 0 {
		return fmt.Errorf("outbox: invalid version %d for %s", version, eventType)
	}
	if fn == nil {
		return fmt.Errorf("outbox: nil decoder for %s@v%d", eventType, version)
	}
	key := decoderKey{eventType: eventType, version: version}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.funcs[key]; exists {
		return fmt.Errorf("outbox: decoder for %s@v%d already added", eventType, version)
	}
	d.funcs[key] = fn
	return nil
}

func (d *Decoders) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	d.mu.RLock()
	fn, ok := d.funcs[decoderKey{eventType: eventType, version: version}]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrNoDecoder, eventType, version)
	}
	return fn(data)
}

// JSON returns a DecodeFunc that unmarshals into a T value.
func JSON[T any]() DecodeFunc {
	return func(data json.RawMessage) (any, error) {
		var out T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
