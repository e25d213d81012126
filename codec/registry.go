package codec

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/viant/x"
)

// Types is the payload type registry backing the codec. Registered types are
// addressed by their Go type name; pointer payloads are tracked with a `*`
// prefix so decoding restores the original pointer-ness.
type Types struct {
	registry *x.Registry
	names    map[reflect.Type]string
	mux      sync.RWMutex
}

// NewTypes creates an empty type registry.
func NewTypes() *Types {
	return &Types{
		registry: x.NewRegistry(),
		names:    make(map[reflect.Type]string),
	}
}

// Register adds a payload type; value may be an instance or a pointer to one.
func (t *Types) Register(value interface{}) {
	rType := reflect.TypeOf(value)
	for rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	name := rType.Name()
	if name == "" {
		return
	}
	t.mux.Lock()
	defer t.mux.Unlock()
	t.registry.Register(x.NewType(rType, x.WithName(name)))
	t.names[rType] = name
}

// NameOf returns the registered name for the payload's type; pointer payloads
// yield a `*`-prefixed name.
func (t *Types) NameOf(payload interface{}) (string, bool) {
	rType := reflect.TypeOf(payload)
	pointer := false
	for rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
		pointer = true
	}
	t.mux.RLock()
	name, ok := t.names[rType]
	t.mux.RUnlock()
	if !ok {
		return "", false
	}
	if pointer {
		return "*" + name, true
	}
	return name, true
}

// New instantiates a registered type from its JSON representation.
func (t *Types) New(name string, data []byte) (interface{}, error) {
	pointer := strings.HasPrefix(name, "*")
	lookupName := strings.TrimPrefix(name, "*")
	t.mux.RLock()
	registered := t.registry.Lookup(lookupName)
	t.mux.RUnlock()
	if registered == nil {
		return nil, fmt.Errorf("%w: unknown payload type %s", ErrUnencodable, name)
	}
	value := reflect.New(registered.Type)
	if err := json.Unmarshal(data, value.Interface()); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", name, err)
	}
	if pointer {
		return value.Interface(), nil
	}
	return value.Elem().Interface(), nil
}
