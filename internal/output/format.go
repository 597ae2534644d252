// Package output provides unified text and JSON formatting for the CLI.
// All commands route their output through this package.
package output

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Format is the output format type.
type Format int

const (
	// FormatText is human-readable formatted text (default).
	FormatText Format = iota
	// FormatJSON is machine-readable JSON output.
	FormatJSON
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	default:
		return "text"
	}
}

// Formatter handles output formatting for commands.
type Formatter struct {
	format Format
	writer io.Writer
	pretty bool // JSON indentation
}

// New creates a Formatter with the given options.
func New(opts ...Option) *Formatter {
	f := &Formatter{
		format: FormatText,
		writer: os.Stdout,
		pretty: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Option is a functional option for Formatter.
type Option func(*Formatter)

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(f *Formatter) { f.format = format }
}

// WithJSON switches to JSON output when enabled.
func WithJSON(enabled bool) Option {
	return func(f *Formatter) {
		if enabled {
			f.format = FormatJSON
		} else {
			f.format = FormatText
		}
	}
}

// WithWriter sets the output writer.
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) { f.writer = w }
}

// WithPretty controls JSON indentation.
func WithPretty(pretty bool) Option {
	return func(f *Formatter) { f.pretty = pretty }
}

// Format returns the current output format.
func (f *Formatter) Format() Format { return f.format }

// IsJSON reports whether the formatter emits JSON.
func (f *Formatter) IsJSON() bool { return f.format == FormatJSON }

// Writer returns the output writer.
func (f *Formatter) Writer() io.Writer { return f.writer }

// DetectFormat determines the output format.
// Priority: explicit flag > VIGIL_OUTPUT_FORMAT > pipe detection > text.
func DetectFormat(jsonFlag bool) Format {
	if jsonFlag {
		return FormatJSON
	}
	switch os.Getenv("VIGIL_OUTPUT_FORMAT") {
	case "json", "JSON":
		return FormatJSON
	case "text", "TEXT":
		return FormatText
	}
	// Piped output defaults to JSON: vigil status | jq .
	if !IsTerminal() {
		return FormatJSON
	}
	return FormatText
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
