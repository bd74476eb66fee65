// Package canonical produces a deterministic JSON encoding for hashing.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON re-encodes v with object keys sorted and no insignificant whitespace.
// Numbers keep their original textual form.
func JSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("failed to encode: %w", err)
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
