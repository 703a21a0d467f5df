// Package cli provides machine-readable output helpers.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
)

// IsJSONOutput reports whether --json was requested.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsJSONLOutput reports whether --jsonl was requested.
func IsJSONLOutput() bool {
	return jsonlOutput
}

// WriteOutput writes v as indented JSON. In jsonl mode a slice is
// written as one compact JSON document per element.
func WriteOutput(out io.Writer, v any) error {
	if IsJSONLOutput() {
		value := reflect.ValueOf(v)
		if value.Kind() == reflect.Slice || value.Kind() == reflect.Array {
			encoder := json.NewEncoder(out)
			for i := 0; i < value.Len(); i++ {
				if err := encoder.Encode(value.Index(i).Interface()); err != nil {
					return err
				}
			}
			return nil
		}
		return json.NewEncoder(out).Encode(v)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
