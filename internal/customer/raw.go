package customer

import (
	"bytes"
	"encoding/json"
	"strconv"

	dErrors "ilsgate/pkg/domain-errors"
)

// Raw is an untrusted registration as submitted: field name to text.
type Raw map[string]string

// ParseRaw decodes a JSON object. Numbers keep their literal spelling and
// booleans become "true"/"false". Null, array and object values are dropped.
func ParseRaw(data []byte) (Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "customer payload is not valid JSON")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "customer payload must be a JSON object")
	}
	return RawFromMap(obj), nil
}

// ParseRawList decodes a JSON array of customer objects.
func ParseRawList(data []byte) ([]Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "batch payload must be a JSON array")
	}
	out := make([]Raw, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			// Left nil; the pipeline reports it as a structural error.
			continue
		}
		out[i] = RawFromMap(obj)
	}
	return out, nil
}

// RawFromMap keeps the scalar values of m.
func RawFromMap(m map[string]any) Raw {
	raw := make(Raw, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			raw[k] = val
		case json.Number:
			raw[k] = val.String()
		case float64:
			raw[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			raw[k] = strconv.Itoa(val)
		case bool:
			raw[k] = strconv.FormatBool(val)
		}
	}
	return raw
}
