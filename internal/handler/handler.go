// Package handler defines the platform automation capability set and its
// per-interface variants. The monitor and dispatcher depend only on the
// Handler interface, never on a concrete variant.
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/vigil-sh/vigil/internal/state"
)

// ErrWindowNotFound is returned by LocateWindow when the target application
// window does not exist. Callers treat this as evidence (the session likely
// ended), not as a failure.
var ErrWindowNotFound = errors.New("window not found")

// ErrControlNotFound is returned by FindControl when the requested control
// is not visible. Clicking a control that has gone away is a no-op.
var ErrControlNotFound = errors.New("control not found")

// Region is a rectangle in screen or pane coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Frame is one timestamped capture of the target interface. Terminal
// handlers fill Text; desktop handlers fill PNG. Frames are immutable
// once produced and owned by a single monitoring cycle.
type Frame struct {
	PNG        []byte    `json:"-"`
	Text       string    `json:"text,omitempty"`
	Region     Region    `json:"region"`
	CapturedAt time.Time `json:"captured_at"`
}

// WindowHandle identifies a located target window (or pane).
type WindowHandle struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Region Region `json:"region"`
}

// ControlKind enumerates the interactive controls a handler can locate.
type ControlKind string

const (
	ControlContinue   ControlKind = "continue"
	ControlNewSession ControlKind = "new_session"
	ControlInput      ControlKind = "input"
	ControlSend       ControlKind = "send"
)

// Control is a located interactive region.
type Control struct {
	Kind   ControlKind `json:"kind"`
	Region Region      `json:"region"`
	Label  string      `json:"label,omitempty"`
	// Keys is the key sequence a terminal handler sends in place of a
	// pointer click. Empty for desktop controls.
	Keys string `json:"keys,omitempty"`
}

// Hint is a platform-specific heuristic reading of a frame. Hints seed
// classification and, above the short-circuit threshold, replace it.
type Hint struct {
	State      state.SessionState
	Confidence float64
	Evidence   string
}

// Handler is the capability set every interface variant implements.
type Handler interface {
	// Name returns the interface name this handler is bound to.
	Name() string

	// LocateWindow finds the target window. Returns ErrWindowNotFound
	// when the application is not running or has no window.
	LocateWindow(ctx context.Context) (WindowHandle, error)

	// CaptureRegion produces a Frame of the window contents.
	CaptureRegion(ctx context.Context, w WindowHandle) (Frame, error)

	// FindControl locates an interactive control inside the window.
	// Returns ErrControlNotFound when the control is not visible.
	FindControl(ctx context.Context, w WindowHandle, kind ControlKind) (Control, error)

	// Click activates a previously located control.
	Click(ctx context.Context, c Control) error

	// TypeText enters text into the window's input area and submits it.
	TypeText(ctx context.Context, w WindowHandle, text string) error

	// Hints returns heuristic state readings for a frame. May be empty.
	Hints(f Frame) []Hint
}
