package main

import (
	"encoding/json"
	"io"
)

// writeJSON writes value as indented JSON, one document per call.
func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
