package jsondb

import (
	"encoding/json"
	"fmt"

	gojson "github.com/goccy/go-json"
)

// Codec serializes a single record to and from its JSON text.
//
// Implementations must be deterministic. Decode failing on malformed input
// is the only expected error path.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// JSONCodec is a Codec using encoding/json.
type JSONCodec[T any] struct{}

// Encode implements [Codec].
func (JSONCodec[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

// Decode implements [Codec].
func (JSONCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// FastJSONCodec is a Codec using github.com/goccy/go-json.
type FastJSONCodec[T any] struct{}

// Encode implements [Codec].
func (FastJSONCodec[T]) Encode(v T) ([]byte, error) {
	return gojson.Marshal(v)
}

// Decode implements [Codec].
func (FastJSONCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := gojson.Unmarshal(data, &v)
	return v, err
}

// CodecByName returns the codec registered under name: "json" or "go-json".
func CodecByName[T any](name string) (Codec[T], error) {
	switch name {
	case "", "json":
		return JSONCodec[T]{}, nil
	case "go-json":
		return FastJSONCodec[T]{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
