// Package envelope holds the mutable payload that flows between nodes
// during an iteration.
package envelope

import "encoding/json"

// Envelope is the payload a node receives and returns. It owns its data
// and metadata maps; callers that need to fan out to more than one
// downstream path must Clone first — an Envelope is never shared by
// reference across a pool boundary.
type Envelope struct {
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

// New returns an envelope with empty, non-nil maps.
func New() *Envelope {
	return &Envelope{
		Data:     make(map[string]any),
		Metadata: make(map[string]any),
	}
}

// NewWithData returns an envelope seeded with the given data map. The map
// is copied shallowly; callers that mutate nested structures after this
// call should clone them too.
func NewWithData(data map[string]any) *Envelope {
	e := New()
	for k, v := range data {
		e.Data[k] = v
	}
	return e
}

// Clone deep-copies the envelope via a JSON round-trip, the same wire
// format the DataStore serializes envelopes with. This is the
// only copy primitive the kernel needs: envelopes carry JSON-safe values
// (the values produced by node execute calls and by the loader).
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	clone := &Envelope{}
	raw, err := json.Marshal(e)
	if err != nil {
		// Data placed in an envelope is expected to be JSON-marshalable;
		// a node that violates this invariant gets a shallow copy instead
		// of a panic.
		clone.Data = shallowCopy(e.Data)
		clone.Metadata = shallowCopy(e.Metadata)
		return clone
	}
	if err := json.Unmarshal(raw, clone); err != nil {
		clone.Data = shallowCopy(e.Data)
		clone.Metadata = shallowCopy(e.Metadata)
		return clone
	}
	return clone
}

func shallowCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal reports structural equality by comparing each envelope's JSON
// encoding: two envelopes are equal when their content is.
func (e *Envelope) Equal(other *Envelope) bool {
	if e == nil || other == nil {
		return e == other
	}
	a, errA := json.Marshal(e)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	var na, nb any
	if json.Unmarshal(a, &na) != nil || json.Unmarshal(b, &nb) != nil {
		return false
	}
	return jsonEqual(na, nb)
}

func jsonEqual(a, b any) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}

// Marshal serializes the envelope to the wire format DataStore uses:
// UTF-8 JSON `{"data": {...}, "metadata": {...}}`.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses the DataStore wire format back into an Envelope.
func Unmarshal(raw []byte) (*Envelope, error) {
	e := New()
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, err
	}
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	return e, nil
}

// Get reads a data key.
func (e *Envelope) Get(key string) (any, bool) {
	v, ok := e.Data[key]
	return v, ok
}

// Set writes a data key.
func (e *Envelope) Set(key string, value any) {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
}

// SetMeta writes a metadata key.
func (e *Envelope) SetMeta(key string, value any) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
}

// GetMeta reads a metadata key.
func (e *Envelope) GetMeta(key string) (any, bool) {
	v, ok := e.Metadata[key]
	return v, ok
}
