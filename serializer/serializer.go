// Package serializer defines the bytes↔typed-object collaborator,
// plus its default implementation.
package serializer

import (
	"akavache/config"
)

// Serializer converts between Go values and their byte-sequence
// representation. A single Serializer instance is shared by every cache
// that uses the TypedObjectLayer and must be safe for concurrent use.
type Serializer interface {
	// Marshal serializes v to bytes.
	Marshal(v interface{}) ([]byte, error)
	// Unmarshal deserializes data into v, which must be a non-nil
	// pointer.
	Unmarshal(data []byte, v interface{}) error
	// SetForcedDateTimeKind forces every time.Time value produced by
	// Unmarshal to the given kind. The cache engine never calls it and
	// never interprets the kind itself.
	SetForcedDateTimeKind(kind config.DateTimeKind)
}
