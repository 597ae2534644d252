package output

import (
	"encoding/json"
	"io"
	"os"
)

// JSON writes v as JSON to the formatter's writer.
func (f *Formatter) JSON(v any) error {
	return WriteJSON(f.writer, v, f.pretty)
}

// WriteJSON writes v as JSON to w.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// PrintJSON writes v as indented JSON to stdout.
func PrintJSON(v any) error {
	return WriteJSON(os.Stdout, v, true)
}
