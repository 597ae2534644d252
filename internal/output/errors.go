package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/vigil-sh/vigil/internal/tui/theme"
)

// CLIError is a structured CLI error with a remediation hint.
type CLIError struct {
	Message string // What failed
	Cause   string // Why it failed (optional)
	Hint    string // Fastest fix (optional)
	Code    string // Programmatic error code (optional)
}

// Error implements the error interface.
func (e *CLIError) Error() string { return e.Message }

// NewCLIError creates an error with just a message.
func NewCLIError(msg string) *CLIError {
	return &CLIError{Message: msg}
}

// WithCause adds a cause.
func (e *CLIError) WithCause(cause string) *CLIError {
	e.Cause = cause
	return e
}

// WithHint adds a remediation hint.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// WithCode adds an error code.
func (e *CLIError) WithCode(code string) *CLIError {
	e.Code = code
	return e
}

func isStderrTerminal() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// FormatCLIError renders an error for the terminal, colored when stderr is
// a terminal and NO_COLOR is unset.
func FormatCLIError(e *CLIError) string {
	useColor := isStderrTerminal() && os.Getenv("NO_COLOR") == ""

	var sb strings.Builder
	if useColor {
		t := theme.Current()
		errorStyle := lipgloss.NewStyle().Foreground(t.Error).Bold(true)
		causeStyle := lipgloss.NewStyle().Foreground(t.Subtext)
		hintStyle := lipgloss.NewStyle().Foreground(t.Info)

		sb.WriteString(errorStyle.Render("Error: "))
		sb.WriteString(e.Message)
		if e.Code != "" {
			sb.WriteString(" [" + e.Code + "]")
		}
		sb.WriteString("\n")
		if e.Cause != "" {
			sb.WriteString(causeStyle.Render("  Cause: ") + e.Cause + "\n")
		}
		if e.Hint != "" {
			sb.WriteString(hintStyle.Render("  Hint: ") + e.Hint + "\n")
		}
		return sb.String()
	}

	sb.WriteString("Error: " + e.Message)
	if e.Code != "" {
		sb.WriteString(" [" + e.Code + "]")
	}
	sb.WriteString("\n")
	if e.Cause != "" {
		sb.WriteString("  Cause: " + e.Cause + "\n")
	}
	if e.Hint != "" {
		sb.WriteString("  Hint: " + e.Hint + "\n")
	}
	return sb.String()
}

// PrintCLIError writes a formatted error to stderr.
func PrintCLIError(e *CLIError) {
	fmt.Fprint(os.Stderr, FormatCLIError(e))
}

// PrintError writes an error in the active format: a JSON envelope on
// stdout, or styled text on stderr.
func PrintError(err error, jsonMode bool) error {
	if jsonMode {
		return WriteJSON(os.Stdout, NewError(err.Error()), true)
	}
	if cliErr, ok := err.(*CLIError); ok {
		PrintCLIError(cliErr)
		return err
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return err
}
