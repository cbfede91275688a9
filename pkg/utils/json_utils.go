package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalPretty serializes v with 2-space indentation and without HTML
// escaping. Map keys are emitted in sorted order, so equal values always
// produce identical bytes.
func MarshalPretty(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalNumbers decodes data into v keeping numbers as json.Number so that
// values which are never modified keep their original textual form
func UnmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after top-level value")
	}
	return nil
}
