package wire

import (
	"encoding/json"
	"sync"

	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/jsoncodec"
)

// Marshaler is implemented by values that need revival logic beyond plain
// JSON decoding. Such values encode under the MarshalledObject tag as
// {"type": <WireTypeName>, "data": <MarshalWire output>}.
type Marshaler interface {
	// WireTypeName names the concrete type so the receiving side can look
	// up a reviver for it.
	WireTypeName() string
	// MarshalWire returns the JSON body stored under "data".
	MarshalWire() ([]byte, error)
}

// ReviveFunc reconstructs a value from the "data" body of a marshalled
// object.
type ReviveFunc func(data []byte) (any, error)

type marshalledBody struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func marshalBody(m Marshaler) ([]byte, error) {
	data, err := m.MarshalWire()
	if err != nil {
		return nil, err
	}
	return jsoncodec.Marshal(marshalledBody{Type: m.WireTypeName(), Data: data})
}

func reviveBody(raw Marshalled) (any, error) {
	var body marshalledBody
	if err := jsoncodec.Unmarshal(raw, &body); err != nil {
		return nil, errspkg.Normalize("wire.Materialize", err)
	}

	if fn, ok := DefaultRevivers.Lookup(body.Type); ok {
		out, err := fn(body.Data)
		if err != nil {
			return nil, errspkg.Normalize("wire.Materialize", err)
		}
		return out, nil
	}

	// no reviver registered: surface the generic decoding of the body
	var out any
	if err := jsoncodec.Unmarshal(body.Data, &out); err != nil {
		return nil, errspkg.Normalize("wire.Materialize", err)
	}
	return out, nil
}

// ReviverRegistry maps marshalled-object type names to their revivers.
type ReviverRegistry struct {
	mu       sync.RWMutex
	revivers map[string]ReviveFunc
}

// DefaultRevivers is the global reviver registry.
var DefaultRevivers = NewReviverRegistry()

// NewReviverRegistry creates an empty reviver registry.
func NewReviverRegistry() *ReviverRegistry {
	return &ReviverRegistry{revivers: make(map[string]ReviveFunc)}
}

// Register adds a reviver for a type name. Registering an empty name or a
// name that is already taken fails.
func (r *ReviverRegistry) Register(name string, fn ReviveFunc) error {
	if name == "" {
		return errspkg.New(errspkg.KindInvalidArgument, "wire.Register", "type name is required")
	}
	if fn == nil {
		return errspkg.New(errspkg.KindInvalidArgument, "wire.Register", "reviver for %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.revivers[name]; exists {
		return errspkg.New(errspkg.KindInvalidArgument, "wire.Register", "reviver %q already registered", name)
	}
	r.revivers[name] = fn
	return nil
}

// Lookup returns the reviver for a type name.
func (r *ReviverRegistry) Lookup(name string) (ReviveFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.revivers[name]
	return fn, ok
}

// RegisterReviver adds a reviver to the default registry.
func RegisterReviver(name string, fn ReviveFunc) error {
	return DefaultRevivers.Register(name, fn)
}
