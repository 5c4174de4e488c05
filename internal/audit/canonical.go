package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StableJSON renders v as JSON with object keys sorted at every depth, so
// equal values always serialize to the same bytes. nil yields "null".
func StableJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal audit payload: %w", err)
	}
	return canonicalize(raw)
}

func canonicalize(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("decode audit payload: %w", err)
	}
	// encoding/json writes map keys in sorted order
	out, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("encode audit payload: %w", err)
	}
	return string(out), nil
}

// stableOrNil returns nil for a nil payload so the column stays NULL.
func stableOrNil(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok && len(raw) == 0 {
		return nil, nil
	}
	s, err := StableJSON(v)
	if err != nil {
		return nil, err
	}
	if s == "null" {
		return nil, nil
	}
	return &s, nil
}
