package docstore

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// MaxPayloadUnits caps the serialized body size, measured in UTF-16 code
// units of the request text.
const MaxPayloadUnits = 50000

// DecodePayload validates a raw request body and decodes it into a payload
// map. Size and shape are checked before any store interaction: oversized
// bodies fail with ErrPayloadTooLarge, anything that is not a JSON object
// fails with ErrMalformedPayload.
func DecodePayload(raw []byte) (map[string]any, error) {
	if PayloadUnits(raw) > MaxPayloadUnits {
		return nil, ErrPayloadTooLarge
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	if payload == nil {
		return nil, ErrMalformedPayload
	}
	return payload, nil
}

// PayloadUnits counts the UTF-16 code units of a UTF-8 encoded body.
// Runes outside the basic multilingual plane count as a surrogate pair.
func PayloadUnits(raw []byte) int {
	units := 0
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
		raw = raw[size:]
	}
	return units
}
