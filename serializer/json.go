package serializer

import (
	"reflect"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"akavache/config"
)

// JSONSerializer is the default Serializer, backed by
// github.com/goccy/go-json — the drop-in, faster-than-stdlib JSON codec
// the rest of the retrieval pack reaches for instead of encoding/json.
type JSONSerializer struct {
	mu       sync.RWMutex
	forceKin config.DateTimeKind
}

// NewJSONSerializer creates a JSONSerializer with no forced DateTime kind.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

func (s *JSONSerializer) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (s *JSONSerializer) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}

	s.mu.RLock()
	kind := s.forceKin
	s.mu.RUnlock()
	if kind != config.DateTimeKindNone {
		forceDateTimeKind(reflect.ValueOf(v), kind)
	}
	return nil
}

func (s *JSONSerializer) SetForcedDateTimeKind(kind config.DateTimeKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceKin = kind
}

// forceDateTimeKind walks a decoded value's addressable fields and
// normalizes every time.Time it finds to kind — a serializer concern
// the cache engine does not interpret itself.
func forceDateTimeKind(v reflect.Value, kind config.DateTimeKind) {
	if !v.IsValid() {
		return
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			forceDateTimeKind(v.Elem(), kind)
		}
	case reflect.Struct:
		if t, ok := v.Addr().Interface().(*time.Time); ok && v.CanSet() {
			*t = applyKind(*t, kind)
			return
		}
		if v.Type() == reflect.TypeOf(time.Time{}) {
			if v.CanSet() {
				v.Set(reflect.ValueOf(applyKind(v.Interface().(time.Time), kind)))
			}
			return
		}
		for i := 0; i < v.NumField(); i++ {
			if v.Field(i).CanSet() {
				forceDateTimeKind(v.Field(i), kind)
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			forceDateTimeKind(v.Index(i), kind)
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			elem := v.MapIndex(key)
			if elem.Kind() == reflect.Ptr || elem.Kind() == reflect.Interface {
				forceDateTimeKind(elem, kind)
			}
			// Non-pointer map values are not addressable/settable in
			// place; typed objects needing this should store *time.Time
			// or pointer-valued structs in maps.
		}
	}
}

func applyKind(t time.Time, kind config.DateTimeKind) time.Time {
	switch kind {
	case config.DateTimeKindUTC:
		return t.UTC()
	case config.DateTimeKindLocal:
		return t.Local()
	case config.DateTimeKindUnspecified:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	default:
		return t
	}
}
