package handler

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// DesktopHandler drives a GUI application through platform automation tools:
// xdotool and ImageMagick's import on Linux, osascript/screencapture/cliclick
// on macOS. Control positions come from templates since pixel captures carry
// no text to search.
type DesktopHandler struct {
	name        string
	windowTitle string
	templates   *Templates
	runner      commandRunner
	goos        string
}

// NewDesktopHandler creates a handler that locates windows by title.
func NewDesktopHandler(name, windowTitle string, templates *Templates) *DesktopHandler {
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &DesktopHandler{
		name:        name,
		windowTitle: windowTitle,
		templates:   templates,
		runner:      execRunner{},
		goos:        runtime.GOOS,
	}
}

// Name returns the bound interface name.
func (h *DesktopHandler) Name() string { return h.name }

// LocateWindow finds the application window by title.
func (h *DesktopHandler) LocateWindow(ctx context.Context) (WindowHandle, error) {
	switch h.goos {
	case "darwin":
		return h.locateDarwin(ctx)
	default:
		return h.locateX11(ctx)
	}
}

func (h *DesktopHandler) locateX11(ctx context.Context) (WindowHandle, error) {
	out, err := h.runner.run(ctx, "xdotool", "search", "--name", h.windowTitle)
	if err != nil || strings.TrimSpace(out) == "" {
		return WindowHandle{}, ErrWindowNotFound
	}
	id := strings.Fields(out)[0]

	geom, err := h.runner.run(ctx, "xdotool", "getwindowgeometry", "--shell", id)
	if err != nil {
		return WindowHandle{}, fmt.Errorf("window geometry for %s: %w", id, err)
	}
	handle := WindowHandle{ID: id, Title: h.windowTitle}
	for _, line := range strings.Split(geom, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		n, _ := strconv.Atoi(v)
		switch k {
		case "X":
			handle.Region.X = n
		case "Y":
			handle.Region.Y = n
		case "WIDTH":
			handle.Region.Width = n
		case "HEIGHT":
			handle.Region.Height = n
		}
	}
	return handle, nil
}

func (h *DesktopHandler) locateDarwin(ctx context.Context) (WindowHandle, error) {
	script := fmt.Sprintf(
		`tell application "System Events" to get {position, size} of first window of (first process whose name contains %q)`,
		h.windowTitle)
	out, err := h.runner.run(ctx, "osascript", "-e", script)
	if err != nil {
		return WindowHandle{}, ErrWindowNotFound
	}

	// osascript returns "x, y, w, h"
	parts := strings.Split(out, ",")
	if len(parts) != 4 {
		return WindowHandle{}, fmt.Errorf("unexpected osascript output %q", out)
	}
	nums := make([]int, 4)
	for i, p := range parts {
		nums[i], _ = strconv.Atoi(strings.TrimSpace(p))
	}
	return WindowHandle{
		ID:     h.windowTitle,
		Title:  h.windowTitle,
		Region: Region{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]},
	}, nil
}

// CaptureRegion grabs a PNG of the window region.
func (h *DesktopHandler) CaptureRegion(ctx context.Context, w WindowHandle) (Frame, error) {
	var png []byte
	var err error

	switch h.goos {
	case "darwin":
		tmp, tmpErr := os.CreateTemp("", "vigil-frame-*.png")
		if tmpErr != nil {
			return Frame{}, tmpErr
		}
		tmpPath := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpPath)

		region := fmt.Sprintf("%d,%d,%d,%d", w.Region.X, w.Region.Y, w.Region.Width, w.Region.Height)
		if _, err = h.runner.run(ctx, "screencapture", "-x", "-R", region, "-t", "png", tmpPath); err == nil {
			png, err = os.ReadFile(tmpPath)
		}
	default:
		png, err = h.runner.runBytes(ctx, "import", "-silent", "-window", w.ID, "png:-")
	}
	if err != nil {
		return Frame{}, fmt.Errorf("capturing window %s: %w", w.ID, err)
	}

	return Frame{
		PNG:        png,
		Region:     w.Region,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// FindControl resolves a control from its template offset. Without OCR a
// desktop handler cannot verify the control is visible, so resolution is
// positional; the classifier's providers confirm what is actually on screen.
func (h *DesktopHandler) FindControl(ctx context.Context, w WindowHandle, kind ControlKind) (Control, error) {
	tmpl, ok := h.templates.Lookup(kind)
	if !ok {
		return Control{}, ErrControlNotFound
	}
	return Control{
		Kind:  kind,
		Label: tmpl.Label,
		Region: Region{
			X:      w.Region.X + tmpl.Offset.X,
			Y:      w.Region.Y + tmpl.Offset.Y,
			Width:  tmpl.Size.Width,
			Height: tmpl.Size.Height,
		},
	}, nil
}

// Click performs a pointer click at the control's position.
func (h *DesktopHandler) Click(ctx context.Context, c Control) error {
	x := strconv.Itoa(c.Region.X)
	y := strconv.Itoa(c.Region.Y)

	switch h.goos {
	case "darwin":
		_, err := h.runner.run(ctx, "cliclick", fmt.Sprintf("c:%s,%s", x, y))
		return err
	default:
		if _, err := h.runner.run(ctx, "xdotool", "mousemove", x, y); err != nil {
			return err
		}
		_, err := h.runner.run(ctx, "xdotool", "click", "1")
		return err
	}
}

// TypeText clicks the input area, types the text, and submits with Return.
func (h *DesktopHandler) TypeText(ctx context.Context, w WindowHandle, text string) error {
	input, err := h.FindControl(ctx, w, ControlInput)
	if err == nil {
		if err := h.Click(ctx, input); err != nil {
			return fmt.Errorf("focusing input area: %w", err)
		}
	}

	switch h.goos {
	case "darwin":
		script := fmt.Sprintf(`tell application "System Events" to keystroke %s & return`,
			appleScriptQuote(text))
		_, err := h.runner.run(ctx, "osascript", "-e", script)
		return err
	default:
		if _, err := h.runner.run(ctx, "xdotool", "type", "--delay", "20", text); err != nil {
			return err
		}
		_, err := h.runner.run(ctx, "xdotool", "key", "Return")
		return err
	}
}

// Hints returns nothing for pixel frames: desktop state reading is the
// vision providers' job.
func (h *DesktopHandler) Hints(f Frame) []Hint {
	return nil
}

// appleScriptQuote escapes a string for embedding in an AppleScript literal.
func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
