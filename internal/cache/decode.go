// Package cache — upstream payload decoding.
//
// Backend list endpoints answer in several historical shapes: a bare JSON
// array, an envelope with a top-level "data" array, or a success envelope
// whose "data" object holds the array under a collection key. Instead of
// cascading shape-sniffing conditionals, DecodeItems walks an explicit,
// ordered priority list of decoders and returns a tagged result naming the
// shape that matched, so the fallback order is testable on its own.
package cache

import (
	"encoding/json"
	"errors"
)

// Decoded is the tagged result of a successful decode.
type Decoded struct {
	// Items are the list elements, still raw.
	Items []json.RawMessage
	// Shape names the decoder that matched ("array", "data_array",
	// "nested_collection").
	Shape string
}

// ErrUnrecognizedPayload is returned when no decoder in the priority list
// matches the payload.
var ErrUnrecognizedPayload = errors.New("unrecognized upstream payload shape")

// decoder attempts one payload shape; ok is false when the shape does not
// match (a non-match is not an error, the next decoder is tried).
type decoder struct {
	shape string
	fn    func(raw []byte) (items []json.RawMessage, ok bool)
}

// decodePriority is the ordered fallback list. Order matters and is part
// of the contract: a bare array wins over envelopes.
var decodePriority = []decoder{
	{"array", decodeArray},
	{"data_array", decodeDataArray},
	{"nested_collection", decodeNestedCollection},
}

// DecodeItems extracts the list elements from an upstream payload using the
// first matching shape in the priority list.
func DecodeItems(raw []byte) (Decoded, error) {
	for _, d := range decodePriority {
		if items, ok := d.fn(raw); ok {
			return Decoded{Items: items, Shape: d.shape}, nil
		}
	}
	return Decoded{}, ErrUnrecognizedPayload
}

// decodeArray matches a bare JSON array: [ ... ].
func decodeArray(raw []byte) ([]json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// decodeDataArray matches { "data": [ ... ] }.
func decodeDataArray(raw []byte) ([]json.RawMessage, bool) {
	var env struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Data == nil {
		return nil, false
	}
	return env.Data, true
}

// decodeNestedCollection matches { "success": ..., "data": { "<key>": [ ... ] } },
// taking the first array-valued key inside the data object.
func decodeNestedCollection(raw []byte) ([]json.RawMessage, bool) {
	var env struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Data == nil {
		return nil, false
	}
	for _, v := range env.Data {
		var items []json.RawMessage
		if err := json.Unmarshal(v, &items); err == nil {
			return items, true
		}
	}
	return nil, false
}
